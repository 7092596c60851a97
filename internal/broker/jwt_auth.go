// FILE: internal/broker/jwt_auth.go
// JWTAuthTransport signs each outbound RESTBridge request with a short-lived
// HS256 bearer token, the auth scheme real exchange-facing sidecars (e.g. a
// Coinbase Advanced Trade JWT) require and the teacher's broker_bridge.go
// never needed against its local, unauthenticated FastAPI sidecar. Not
// grounded on a teacher file; authored against golang-jwt/jwt/v5's documented
// claims-building pattern to give the dependency a concrete, exercised home
// in RESTBridge.do.
package broker

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthTransport mints and caches a bearer token, re-signing once the
// cached token is within its refresh window of expiry.
type JWTAuthTransport struct {
	KeyID  string
	Secret []byte
	TTL    time.Duration

	cached    string
	cachedExp time.Time
}

// NewJWTAuthTransport constructs a transport; ttl defaults to 2 minutes,
// matching the short-lived-token convention of exchange JWT auth schemes.
func NewJWTAuthTransport(keyID string, secret []byte, ttl time.Duration) *JWTAuthTransport {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &JWTAuthTransport{KeyID: keyID, Secret: secret, TTL: ttl}
}

// Sign attaches a fresh (or cached, if still valid) Authorization: Bearer
// header to req.
func (t *JWTAuthTransport) Sign(req *http.Request) error {
	if t.cached != "" && time.Until(t.cachedExp) > 15*time.Second {
		req.Header.Set("Authorization", "Bearer "+t.cached)
		return nil
	}
	now := time.Now().UTC()
	exp := now.Add(t.TTL)
	claims := jwt.MapClaims{
		"sub": t.KeyID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"uri": req.Method + " " + req.URL.Path,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = t.KeyID
	signed, err := token.SignedString(t.Secret)
	if err != nil {
		return err
	}
	t.cached = signed
	t.cachedExp = exp
	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}
