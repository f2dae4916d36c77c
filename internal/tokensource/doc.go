// Package tokensource exchanges a refresh token for a new access token.
//
// Two authorities are supported:
//   - EndpointRefresher: the marketplace API's own refresh endpoint, which takes
//     {"refreshToken": "..."} and answers {"accessToken": "..."} or
//     {"tokens": {"accessToken": "..."}}
//   - OAuth2Refresher: a standard refresh_token grant, optionally JSON-encoded for
//     identity services that reject form bodies
//
// Both return *oauth2.Token and honour the caller's context.
//
//	r, err := tokensource.NewEndpointRefresher("https://api.example.com", "/auth/refresh")
//	tok, err := r.Refresh(ctx, refreshToken)
package tokensource
