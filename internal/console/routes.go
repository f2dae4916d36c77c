package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/session"
)

// maxRequestBody caps inbound JSON bodies.
const maxRequestBody = 1 << 20

// asOperator authenticates every feature call with the inbound request's session.
var asOperator = apiclient.AuthAs(session.Server)

var validate = validator.New()

// apiCall is a feature operation bound to one inbound request.
type apiCall func(ctx context.Context, r *http.Request) (json.RawMessage, error)

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	mux.HandleFunc("POST /session", s.login)
	mux.HandleFunc("DELETE /session", s.logout)

	svc := s.services

	mux.Handle("GET /api/payments", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		p, err := listParams(r)
		if err != nil {
			return nil, err
		}
		return svc.Payments.List(ctx, p, asOperator)
	}))
	mux.Handle("GET /api/payments/{id}", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Payments.Get(ctx, r.PathValue("id"), asOperator)
	}))

	mux.Handle("GET /api/disputes", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		p, err := listParams(r)
		if err != nil {
			return nil, err
		}
		return svc.Disputes.List(ctx, p, asOperator)
	}))
	mux.Handle("GET /api/disputes/{id}", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Disputes.Get(ctx, r.PathValue("id"), asOperator)
	}))
	mux.Handle("POST /api/disputes/{id}/resolve", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		return svc.Disputes.Resolve(ctx, r.PathValue("id"), body, asOperator)
	}))

	mux.Handle("GET /api/support/tickets", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		p, err := listParams(r)
		if err != nil {
			return nil, err
		}
		return svc.Support.ListTickets(ctx, p, asOperator)
	}))
	mux.Handle("PATCH /api/support/tickets/{id}", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		var req struct {
			Status string `json:"status" validate:"required"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return svc.Support.UpdateTicketStatus(ctx, r.PathValue("id"), req.Status, asOperator)
	}))

	mux.Handle("GET /api/ratings", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		p, err := listParams(r)
		if err != nil {
			return nil, err
		}
		return svc.Ratings.List(ctx, p, asOperator)
	}))
	mux.Handle("DELETE /api/ratings/{id}", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Ratings.Delete(ctx, r.PathValue("id"), asOperator)
	}))

	mux.Handle("GET /api/referrals/settings", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Referrals.Settings(ctx, asOperator)
	}))
	mux.Handle("PATCH /api/referrals/settings", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		return svc.Referrals.UpdateSettings(ctx, body, asOperator)
	}))

	mux.Handle("GET /api/notifications", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		p, err := listParams(r)
		if err != nil {
			return nil, err
		}
		return svc.Notifications.List(ctx, p, asOperator)
	}))
	mux.Handle("POST /api/notifications/{id}/read", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Notifications.MarkRead(ctx, r.PathValue("id"), asOperator)
	}))

	mux.Handle("GET /api/profile", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Profile.Get(ctx, asOperator)
	}))
	mux.Handle("PATCH /api/profile", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		return svc.Profile.Update(ctx, body, asOperator)
	}))

	mux.Handle("GET /api/settings", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		return svc.Settings.Get(ctx, asOperator)
	}))
	mux.Handle("PATCH /api/settings", s.forward(func(ctx context.Context, r *http.Request) (json.RawMessage, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		return svc.Settings.Update(ctx, body, asOperator)
	}))
}

// forward runs fn and writes its payload or its classified error.
func (s *Server) forward(fn apiCall) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, err := fn(ctx, r)
		if err != nil {
			if bad, ok := err.(badRequest); ok {
				writeJSONError(ctx, w, CodeInvalidRequest, bad.Error(), http.StatusBadRequest)
				return
			}
			writeAPIError(ctx, w, err)
			return
		}
		writeRaw(w, payload)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req marketplace.LoginRequest
	if err := decode(r, &req); err != nil {
		writeJSONError(ctx, w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	creds, err := s.auth.Login(ctx, req)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	if _, err := s.sessions.Start(ctx, w, creds); err != nil {
		s.logger.ErrorContext(ctx, "failed to start session", "error", err)
		writeJSONError(ctx, w, CodeInternal, defaultInternalMessage, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]string{"status": "ok"}, http.StatusCreated)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.sessions.End(ctx, w); err != nil {
		s.logger.ErrorContext(ctx, "failed to end session", "error", err)
		writeJSONError(ctx, w, CodeInternal, defaultInternalMessage, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// badRequest is a malformed inbound request, answered before any API call.
type badRequest struct{ msg string }

func (b badRequest) Error() string { return b.msg }

func listParams(r *http.Request) (marketplace.ListParams, error) {
	q := r.URL.Query()
	p := marketplace.ListParams{Status: q.Get("status"), Search: q.Get("search")}

	for name, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, badRequest{fmt.Sprintf("%s must be a positive integer", name)}
		}
		*dst = n
	}
	return p, nil
}

// readBody reads a JSON body to forward without interpreting it.
func readBody(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err != nil {
		return nil, badRequest{"reading request body: " + err.Error()}
	}
	if !json.Valid(data) {
		return nil, badRequest{"request body must be valid JSON"}
	}
	return json.RawMessage(data), nil
}

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return badRequest{"invalid JSON body: " + err.Error()}
	}
	if err := validate.Struct(v); err != nil {
		return badRequest{err.Error()}
	}
	return nil
}
