// Package auth provides user accounts, their remote device API credentials
// and JWT access token handling for Hearth Core.
//
// There is no password or login flow: access tokens are provisioned
// out-of-band (operator tooling signs them with the shared secret) and the
// API layer validates them by signature. Each user carries the server URL
// and access token for their own remote device API account; the dispatch
// engine builds its per-cycle gateway from those credentials.
package auth
