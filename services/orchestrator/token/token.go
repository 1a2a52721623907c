// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package token implements a signed, expiring, content-bound capability
// token.
//
// The chat pipeline uses it for the two-step web-search confirmation: when
// internal evidence is judged insufficient, the server mints a token bound
// to the exact question text and hands it to the caller instead of keeping
// any server-side session state. The resubmitted token proves that the
// caller confirmed web search for that question, recently, against this
// server's secret. The design is generic: any two-step confirmation can
// reuse it by binding a different content string.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation failures. Handlers map all of these to a 400 ValidationError;
// the distinctions exist for logs and tests, not for callers.
var (
	ErrMalformed    = errors.New("token is malformed")
	ErrBadSignature = errors.New("token signature mismatch")
	ErrExpired      = errors.New("token has expired")
	ErrWrongContent = errors.New("token is bound to different content")
)

// payload is the signed body. It carries only what re-derivation needs:
// when the capability lapses and a digest of the content it was minted for.
type payload struct {
	Exp         int64  `json:"exp"`
	MessageHash string `json:"message_hash"`
}

// Signer mints and validates capability tokens with a process-wide secret.
// The zero value is unusable; construct with NewSigner.
//
// Signer is safe for concurrent use: it is read-only after construction.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. ttl bounds how long a minted token stays
// valid; zero or negative falls back to five minutes.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the configured validity window.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint issues a token bound to content, expiring ttl from now.
// Format: base64url(payload JSON) + "." + base64url(HMAC-SHA256(payload)).
func (s *Signer) Mint(content string) (string, error) {
	body, err := json.Marshal(payload{
		Exp:         s.now().Add(s.ttl).Unix(),
		MessageHash: contentHash(content),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + s.sign(encoded), nil
}

// Validate checks tok against content: signature first (constant time),
// then expiry, then content binding. Any mutation of the payload or the
// signature, a lapsed expiry, or a changed question text fails validation.
func (s *Signer) Validate(tok, content string) error {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok || encoded == "" || sig == "" {
		return ErrMalformed
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(sig)) {
		return ErrBadSignature
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrMalformed
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return ErrMalformed
	}
	if s.now().Unix() > p.Exp {
		return ErrExpired
	}
	if !hmac.Equal([]byte(p.MessageHash), []byte(contentHash(content))) {
		return ErrWrongContent
	}
	return nil
}

func (s *Signer) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
