// Package session resolves the credential pair that authenticates outbound API calls.
//
// Credentials are looked up per execution context:
//   - Server: the pair attached to an inbound console request by Middleware
//   - Client: the pair held in a tokenstore.TokenStore for interactive use
//
// Readers never mutate session state. Persisting rotated tokens is left to the
// owner of the underlying storage (Repository for server sessions, TokenStore for
// client sessions).
package session
