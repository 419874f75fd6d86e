// Package token provides compact, HMAC-SHA256 signed tokens carrying JSON
// payloads. They back magic-link emails and session cookies: short-lived,
// self-contained, no server-side storage.
//
// Token format: base64url(payload).base64url(signature). The signature is
// truncated to 8 bytes, which keeps tokens short and is sufficient for the
// short TTLs used here; do not use these tokens for long-lived grants.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrSignatureInvalid = errors.New("signature mismatch")
)

const signatureLen = 8

// Generate JSON-encodes the payload and appends a truncated HMAC-SHA256
// signature keyed with secret.
func Generate[T any](payload T, secret string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	sig := h.Sum(nil)[:signatureLen]

	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Parse verifies the token signature and decodes the payload into T.
func Parse[T any](tok string, secret string) (T, error) {
	var payload T

	head, tail, ok := strings.Cut(tok, ".")
	if !ok {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(head)
	if err != nil {
		return payload, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(tail)
	if err != nil {
		return payload, ErrInvalidToken
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	want := h.Sum(nil)[:signatureLen]

	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrInvalidToken
	}

	return payload, nil
}
