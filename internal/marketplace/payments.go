package marketplace

import (
	"context"
	"encoding/json"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// Payments lists and inspects marketplace payments.
type Payments struct {
	c *apiclient.Client
}

// List returns one page of payments.
func (s *Payments) List(ctx context.Context, p ListParams, auth apiclient.AuthMode) (json.RawMessage, error) {
	path, err := withQuery("/payments", p)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, path, auth)
}

// Get returns a single payment.
func (s *Payments) Get(ctx context.Context, id string, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, "/payments/"+seg, auth)
}
