package marketplace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// Support handles support tickets.
type Support struct {
	c *apiclient.Client
}

// ListTickets returns one page of help desk tickets.
func (s *Support) ListTickets(ctx context.Context, p ListParams, auth apiclient.AuthMode) (json.RawMessage, error) {
	path, err := withQuery("/help-support", p)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, path, auth)
}

// UpdateTicketStatus moves a ticket to the given status, e.g. RESOLVED.
func (s *Support) UpdateTicketStatus(ctx context.Context, id, status string, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	if status == "" {
		return nil, invalidRequest(fmt.Errorf("empty ticket status"))
	}
	body := struct {
		Status string `json:"status"`
	}{status}
	return apiclient.Patch[json.RawMessage](ctx, s.c, "/help-support/"+seg+"/status", body, auth)
}

// Ratings moderates buyer and seller ratings.
type Ratings struct {
	c *apiclient.Client
}

// List returns one page of ratings.
func (s *Ratings) List(ctx context.Context, p ListParams, auth apiclient.AuthMode) (json.RawMessage, error) {
	path, err := withQuery("/ratings", p)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, path, auth)
}

// Delete removes a rating. Most deployments answer 204, so the result may be nil.
func (s *Ratings) Delete(ctx context.Context, id string, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Delete[json.RawMessage](ctx, s.c, "/ratings/"+seg, nil, auth)
}

// Notifications lists the operator's notifications.
type Notifications struct {
	c *apiclient.Client
}

// List returns one page of notifications.
func (s *Notifications) List(ctx context.Context, p ListParams, auth apiclient.AuthMode) (json.RawMessage, error) {
	path, err := withQuery("/notifications", p)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Get[json.RawMessage](ctx, s.c, path, auth)
}

// MarkRead flags a single notification as read.
func (s *Notifications) MarkRead(ctx context.Context, id string, auth apiclient.AuthMode) (json.RawMessage, error) {
	seg, err := pathID(id)
	if err != nil {
		return nil, invalidRequest(err)
	}
	return apiclient.Patch[json.RawMessage](ctx, s.c, "/notifications/"+seg+"/read", nil, auth)
}
