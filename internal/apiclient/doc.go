// Package apiclient is the single request layer every console feature uses to
// talk to the marketplace API.
//
// Each call attaches the bearer token of the selected session, and on a 401
// refreshes the credential once and retries once:
//
//	page, err := apiclient.Get[PaymentsPage](ctx, client, "/payments?page=1", apiclient.AuthAs(session.Client))
//	switch apiclient.KindOf(err) {
//	case apiclient.KindUnauthorized: // re-authenticate
//	case apiclient.KindForbidden:    // access denied
//	}
//
// # Errors
//
// Every failure is an *Error of one of four kinds: KindUnauthorized, KindForbidden,
// KindTransportFailure, KindServerRejected. Status codes are informational only.
//
// # Refresh coordination
//
// At most one refresh runs per refresh token. With PolicyShare (the default)
// concurrent callers wait for it and retry with its token; with PolicyFailFast
// they fail with KindUnauthorized instead. The client never stores the new
// token; a RefreshListener hands it to the session owner.
package apiclient
