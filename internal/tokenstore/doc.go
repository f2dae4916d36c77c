// Package tokenstore persists the client session of the console CLI.
//
// Three backends with different security and deployment tradeoffs:
//   - File: local file with atomic writes and 0600 permissions
//   - Env: read-only environment variable, provisioned by external secret management
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//
// Stores hold an opaque string; the session package decides its encoding.
// Rotating refreshed tokens requires a writable backend (file or keyring).
package tokenstore
