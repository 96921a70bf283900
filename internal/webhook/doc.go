// Package webhook receives platform event notifications over HTTP and
// authenticates them with the v0 HMAC-SHA256 signing scheme.
//
// # Security Model
//
//   - Signature covers "v0:" + timestamp + ":" + raw body, keyed by the signing secret
//   - Comparison uses crypto/subtle (constant time)
//   - Timestamps outside the replay window are rejected (default 5 minutes)
//   - The body is read once, size-limited, and verified before any parsing
//   - Rejections return a generic 403; the reason is only logged
//
// # Request Flow
//
//  1. HTTP POST arrives at the events path
//  2. Body size checked (413 if too large)
//  3. Timestamp and signature headers verified (403 on any failure)
//  4. Body handed to the event handler
//  5. Handshake answered with {"challenge": ...}, everything else with {"ok": true}
//
// # Error Responses
//
//   - 400 Bad Request: authenticated body is not valid JSON, or file_shared lacks a file id
//   - 403 Forbidden: missing, stale or invalid signature (no details)
//   - 413 Payload Too Large: body exceeds max_body_size
//
// Retrieval failures never change the response: the platform is always
// acknowledged so it does not redeliver.
package webhook
