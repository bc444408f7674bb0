// Package auth implements a JWKS-backed JWT handshake authenticator.
// The key lookup is grounded on the teacher's internal/v1/auth.Validator
// (lestrrat-go/jwx cache + golang-jwt/jwt keyfunc), and the JWKS fetch path
// is wrapped in a sony/gobreaker circuit breaker the way the teacher wraps
// its Redis client in internal/v1/bus, so a flapping JWKS endpoint degrades
// to rejecting handshakes instead of hanging every accept behind a timeout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/metrics"
)

// Claims is the JWT claim set this authenticator expects.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates the bearer token on the handshake request
// against a JWKS endpoint. It implements wsrelay.Authenticator.
type JWTAuthenticator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
	cb       *gobreaker.CircuitBreaker
}

// NewJWTAuthenticator registers jwksURL with a refreshing cache and
// verifies it is reachable before returning.
func NewJWTAuthenticator(ctx context.Context, jwksURL, issuer, audience string) (*JWTAuthenticator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithRefreshInterval(1*time.Hour)); err != nil {
		return nil, fmt.Errorf("wsrelay/auth: register jwks cache: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("wsrelay/auth: initial jwks fetch: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "jwks",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info("jwks circuit breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("wsrelay/auth: kid header not found")
		}
		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("wsrelay/auth: fetch jwks: %w", err)
		}
		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("wsrelay/auth: key %s not found", kid)
		}
		var pub interface{}
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("wsrelay/auth: decode public key: %w", err)
		}
		return pub, nil
	}

	return &JWTAuthenticator{
		keyFunc:  keyFunc,
		issuer:   issuer,
		audience: audience,
		cb:       gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Authenticate extracts the bearer token from the Authorization header
// and validates it against the configured issuer, audience, and JWKS.
func (a *JWTAuthenticator) Authenticate(r *http.Request) error {
	tokenString, err := bearerToken(r)
	if err != nil {
		return err
	}

	_, err = a.cb.Execute(func() (interface{}, error) {
		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, a.keyFunc,
			jwt.WithIssuer(a.issuer),
			jwt.WithAudience(a.audience),
		)
		if err != nil {
			return nil, fmt.Errorf("wsrelay/auth: parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("wsrelay/auth: token is invalid")
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) {
		metrics.AuthRejectedTotal.WithLabelValues("jwks_circuit_open").Inc()
		return fmt.Errorf("wsrelay/auth: jwks circuit open: %w", err)
	}
	if err != nil {
		metrics.AuthRejectedTotal.WithLabelValues("invalid_token").Inc()
	}
	return err
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, nil
		}
		return "", errors.New("wsrelay/auth: missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("wsrelay/auth: Authorization header must use Bearer scheme")
	}
	return strings.TrimPrefix(header, prefix), nil
}
