// Package http provides HTTP handlers and middleware for the work-order API.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a session token. Body: {"email","password"}. Response:
//     {"token","expires_at","principal":{"user_id","display_name","is_admin"}} with the
//     token also surfaced via the `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: revokes the token carried by the request. DELETE
//     /sessions/{token} lets administrators revoke any token.
//   - POST /work-orders/recurrences: materializes the occurrences of a recurring work
//     order. Body: `expandRecurrenceRequest`; responds 201 with the created occurrences.
//   - POST /work-orders/overlaps/resolve: repacks overlapping work orders per resource
//     and day. Body: `resolveOverlapsRequest`; responds 200 with the updated schedules.
//   - GET /work-orders?sort=-created_at&limit=N and GET /work-orders/{id}: reads.
//
// Every route except POST /sessions requires a bearer token (Authorization header or
// `session_token` cookie). Errors are RFC 7807 problem documents; validation problems
// add an `errors` object keyed by JSON field path.
package http
