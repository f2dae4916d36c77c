package marketplace

import (
	"context"
	"encoding/json"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// Disputes manages buyer and seller disputes.
type Disputes struct {
	c *apiclient.Client
}

// List returns one page of disputes.
func (s *Disputes) List(ctx context.Context, p ListParams, auth apiclient.AuthMode) (json.RawMessage, error) {
	path, err := withQuery("/disputes", p)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, path, auth)
}

// Get returns a single dispute.
func (s *Disputes) Get(ctx context.Context, id string, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, "/disputes/"+seg, auth)
}

// Resolve submits a resolution. The body is forwarded as is.
func (s *Disputes) Resolve(ctx context.Context, id string, body json.RawMessage, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Post[json.RawMessage](ctx, s.c, "/disputes/"+seg+"/resolve", body, auth)
}
