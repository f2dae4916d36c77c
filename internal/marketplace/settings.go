package marketplace

import (
	"context"
	"encoding/json"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// document reads and replaces a single JSON resource.
type document struct {
	c    *apiclient.Client
	path string
}

func (d document) get(ctx context.Context, auth apiclient.AuthMode) (json.RawMessage, error) {
	return apiclient.Get[json.RawMessage](ctx, d.c, d.path, auth)
}

func (d document) update(ctx context.Context, body json.RawMessage, auth apiclient.AuthMode) (json.RawMessage, error) {
	return apiclient.Patch[json.RawMessage](ctx, d.c, d.path, body, auth)
}

// Referrals holds the referral program settings.
type Referrals struct {
	c *apiclient.Client
}

// Settings returns the referral program settings.
func (s *Referrals) Settings(ctx context.Context, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/referrals/settings"}.get(ctx, auth)
}

// UpdateSettings patches the referral program settings.
func (s *Referrals) UpdateSettings(ctx context.Context, body json.RawMessage, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/referrals/settings"}.update(ctx, body, auth)
}

// Profile is the signed-in operator's profile.
type Profile struct {
	c *apiclient.Client
}

// Get returns the operator profile.
func (s *Profile) Get(ctx context.Context, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/profile"}.get(ctx, auth)
}

// Update patches the operator profile.
func (s *Profile) Update(ctx context.Context, body json.RawMessage, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/profile"}.update(ctx, body, auth)
}

// Settings holds platform-wide configuration such as fees and feature toggles.
type Settings struct {
	c *apiclient.Client
}

// Get returns the platform settings.
func (s *Settings) Get(ctx context.Context, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/settings"}.get(ctx, auth)
}

// Update patches the platform settings.
func (s *Settings) Update(ctx context.Context, body json.RawMessage, auth apiclient.AuthMode) (json.RawMessage, error) {
	return document{s.c, "/settings"}.update(ctx, body, auth)
}
