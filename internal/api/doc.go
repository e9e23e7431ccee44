// Package api provides the HTTP client for the broker's authentication service.
//
// Endpoints:
//   - Login: POST <auth url> {"username","password"} -> {"token"}
//   - Identity: GET <me url> with "Authorization: Bearer <token>" -> {"investorId"}
//
// The client performs a single attempt per call. Retrying is left to the
// connection supervisor, which reconnects on a fixed schedule.
package api
