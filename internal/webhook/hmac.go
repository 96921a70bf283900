package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// SignatureVersion prefixes both the signing base string and the signature.
const SignatureVersion = "v0"

// Rejection reasons. They are logged but never sent to the caller.
var (
	ErrMissingHeaders   = errors.New("missing timestamp or signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleTimestamp   = errors.New("request timestamp outside replay window")
)

// VerifierConfig is the immutable input of a Verifier.
type VerifierConfig struct {
	// Secret is the platform signing secret. An empty secret rejects everything.
	Secret string

	// Tolerance is the replay window. Zero disables the freshness check.
	Tolerance time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Verifier authenticates inbound requests with the v0 HMAC-SHA256 scheme:
//
//	v0=hex(HMAC-SHA256(secret, "v0:" + timestamp + ":" + body))
//
// The body must be the exact bytes received; re-encoded JSON will not match.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier from cfg.
func NewVerifier(cfg VerifierConfig) *Verifier {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		tolerance: cfg.Tolerance,
		now:       now,
	}
}

// Verify approves the request (nil) or returns the rejection reason.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if timestamp == "" || signature == "" {
		return ErrMissingHeaders
	}

	if v.tolerance > 0 {
		if err := v.checkFreshness(timestamp); err != nil {
			return err
		}
	}

	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	expected := computeSignature(v.secret, timestamp, body)

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) checkFreshness(timestamp string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift.Abs() > v.tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

// Sign returns the v0 signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	return computeSignature([]byte(secret), timestamp, body)
}

func computeSignature(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
