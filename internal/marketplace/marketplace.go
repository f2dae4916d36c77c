// Package marketplace exposes the admin console's feature areas on top of
// the apiclient verb surface. Payloads are passed through as raw JSON; their
// meaning belongs to the remote API.
package marketplace

import (
	"fmt"
	"net/url"

	"github.com/oapi-codegen/runtime"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// Services groups every feature area behind one API client.
type Services struct {
	Payments      *Payments
	Disputes      *Disputes
	Support       *Support
	Ratings       *Ratings
	Referrals     *Referrals
	Notifications *Notifications
	Profile       *Profile
	Settings      *Settings
}

// New creates all feature services for c.
func New(c *apiclient.Client) *Services {
	return &Services{
		Payments:      &Payments{c: c},
		Disputes:      &Disputes{c: c},
		Support:       &Support{c: c},
		Ratings:       &Ratings{c: c},
		Referrals:     &Referrals{c: c},
		Notifications: &Notifications{c: c},
		Profile:       &Profile{c: c},
		Settings:      &Settings{c: c},
	}
}

// ListParams filters and paginates list endpoints. Zero values are omitted.
type ListParams struct {
	Page   int
	Limit  int
	Status string
	Search string
}

// withQuery appends the non-zero parameters of p to path.
func withQuery(path string, p ListParams) (string, error) {
	params := []struct {
		name  string
		value any
		set   bool
	}{
		{"page", p.Page, p.Page > 0},
		{"limit", p.Limit, p.Limit > 0},
		{"status", p.Status, p.Status != ""},
		{"search", p.Search, p.Search != ""},
	}

	query := url.Values{}
	for _, param := range params {
		if !param.set {
			continue
		}
		frag, err := runtime.StyleParamWithLocation("form", true, param.name, runtime.ParamLocationQuery, param.value)
		if err != nil {
			return "", fmt.Errorf("encoding %s: %w", param.name, err)
		}
		parsed, err := url.ParseQuery(frag)
		if err != nil {
			return "", fmt.Errorf("encoding %s: %w", param.name, err)
		}
		for k, v := range parsed {
			query[k] = append(query[k], v...)
		}
	}

	if len(query) == 0 {
		return path, nil
	}
	return path + "?" + query.Encode(), nil
}

// pathID escapes a resource identifier for use as a path segment.
func pathID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty resource id")
	}
	return runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
}

// invalidRequest reports a call that could not be built. Like any request
// that never reached the server it is a transport failure.
func invalidRequest(err error) error {
	return &apiclient.Error{Kind: apiclient.KindTransportFailure, Message: "invalid request", Err: err}
}
