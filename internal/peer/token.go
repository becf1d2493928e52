// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package peer

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	tokenIssuer = "luna"
	tokenTTL    = 5 * time.Minute
)

// TokenProvider issues per-target access tokens for requests sent to
// peer controllers. Tokens are signed with the cluster secret, name the
// caller as subject and the target as audience.
type TokenProvider struct {
	hostname string
	secret   []byte
	clock    clock.Clock
}

// NewTokenProvider returns a token provider for the local controller.
func NewTokenProvider(hostname string, secret []byte, clock clock.Clock) (*TokenProvider, error) {
	if hostname == "" {
		return nil, errors.NotValidf("empty hostname")
	}
	if len(secret) == 0 {
		return nil, errors.NotValidf("empty secret")
	}
	return &TokenProvider{
		hostname: hostname,
		secret:   secret,
		clock:    clock,
	}, nil
}

// Token returns a signed token valid for requests to the target.
func (p *TokenProvider) Token(target string) (string, error) {
	now := p.clock.Now()
	token, err := jwt.NewBuilder().
		Issuer(tokenIssuer).
		Subject(p.hostname).
		Audience([]string{target}).
		IssuedAt(now).
		Expiration(now.Add(tokenTTL)).
		Build()
	if err != nil {
		return "", errors.Annotate(err, "building token")
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, p.secret))
	if err != nil {
		return "", errors.Annotate(err, "signing token")
	}
	return string(signed), nil
}

// TokenVerifier checks tokens presented to the local controller.
type TokenVerifier struct {
	hostname string
	secret   []byte
	clock    clock.Clock
}

// NewTokenVerifier returns a verifier accepting tokens addressed to the
// local controller.
func NewTokenVerifier(hostname string, secret []byte, clock clock.Clock) (*TokenVerifier, error) {
	if hostname == "" {
		return nil, errors.NotValidf("empty hostname")
	}
	if len(secret) == 0 {
		return nil, errors.NotValidf("empty secret")
	}
	return &TokenVerifier{
		hostname: hostname,
		secret:   secret,
		clock:    clock,
	}, nil
}

// Verify validates the raw token and returns the calling controller.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(v.hostname),
		jwt.WithClock(v.clock),
	)
	if err != nil {
		return "", errors.Unauthorizedf("invalid token: %v", err)
	}
	if token.Subject() == "" {
		return "", errors.Unauthorizedf("token without subject")
	}
	return token.Subject(), nil
}
