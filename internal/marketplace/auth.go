package marketplace

import (
	"context"
	"fmt"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/session"
)

// DefaultLoginPath is the identity endpoint that exchanges operator credentials for a session.
const DefaultLoginPath = "/auth/login"

// LoginRequest carries operator credentials. It is never logged.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	tokenPair
	Tokens *tokenPair `json:"tokens"`
}

// Auth talks to the identity endpoint. Its calls are never authenticated.
type Auth struct {
	c    *apiclient.Client
	path string
}

// NewAuth creates an Auth service posting to path, or DefaultLoginPath when empty.
func NewAuth(c *apiclient.Client, path string) *Auth {
	if path == "" {
		path = DefaultLoginPath
	}
	return &Auth{c: c, path: path}
}

// Login exchanges operator credentials for a credential pair.
func (a *Auth) Login(ctx context.Context, req LoginRequest) (session.Credentials, error) {
	resp, err := apiclient.Post[loginResponse](ctx, a.c, a.path, req, apiclient.NoAuth)
	if err != nil {
		return session.Credentials{}, err
	}

	pair := resp.tokenPair
	if resp.Tokens != nil && resp.Tokens.AccessToken != "" {
		pair = *resp.Tokens
	}
	if pair.AccessToken == "" {
		return session.Credentials{}, &apiclient.Error{
			Kind:    apiclient.KindServerRejected,
			Message: "login response carries no access token",
			Err:     fmt.Errorf("unexpected login response shape"),
		}
	}

	return session.Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}
