package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/infra/config"
)

const (
	principalKey = "principal_id"
)

// jwksTTL is the cache lifetime for a configured issuer's key set (§4.12:
// "signature validated via JWKS (cached 5 min)").
const jwksTTL = 5 * time.Minute

const jwksCacheKey = "jwks"

// BearerClaims are the standard claims the single configured issuer is
// expected to assert.
type BearerClaims struct {
	jwt.RegisteredClaims
}

// jwksCache holds the configured issuer's keyfunc.Keyfunc behind a
// ristretto TTL cache — the same SetWithTTL idiom the teacher's
// template_cache.go uses, here applied to its natural fit: a single,
// probabilistically-evicted entry that simply needs to expire after
// jwksTTL and be refetched. (The strict-LRU template content cache,
// by contrast, cannot use ristretto — see templatecache package.)
type jwksCache struct {
	jwksURI string
	rc      *ristretto.Cache[string, keyfunc.Keyfunc]

	mu     sync.Mutex
	lastOK time.Time
}

func newJWKSCache(jwksURI string) *jwksCache {
	rc, err := ristretto.NewCache(&ristretto.Config[string, keyfunc.Keyfunc]{
		NumCounters: 16,
		MaxCost:     16,
		BufferItems: 64,
	})
	if err != nil {
		panic(err) // fixed, small config; failure indicates a programmer error
	}
	return &jwksCache{jwksURI: jwksURI, rc: rc}
}

func (j *jwksCache) get(ctx context.Context) (keyfunc.Keyfunc, error) {
	if kf, ok := j.rc.Get(jwksCacheKey); ok {
		return kf, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	kf, err := keyfunc.NewDefaultCtx(fetchCtx, []string{j.jwksURI})
	if err != nil {
		return nil, err
	}
	j.rc.SetWithTTL(jwksCacheKey, kf, 1, jwksTTL)
	j.rc.Wait()

	j.mu.Lock()
	j.lastOK = time.Now()
	j.mu.Unlock()
	return kf, nil
}

// JWKSChecker is the /readyz view of the JWKS cache, satisfied by the
// *jwksCache BearerAuth returns.
type JWKSChecker interface {
	LastReachable(within time.Duration) bool
}

// LastReachable reports whether the JWKS endpoint has been reachable
// within the given window, for the /readyz check (§4.12).
func (j *jwksCache) LastReachable(within time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.lastOK.IsZero() && time.Since(j.lastOK) <= within
}

// BearerAuth validates the inbound Authorization header against the
// single configured issuer's JWKS, per §4.1/§4.12: a single issuer,
// audience, and JWKS URI (narrower than the teacher's multi-provider
// MultiOIDCAuth, which this is adapted from). When cfg.EffectiveBypass()
// is true, validation is skipped entirely — gated hard on
// Environment=="development" inside Config itself so no external
// configuration combination can enable it elsewhere.
func BearerAuth(cfg *config.Config) (gin.HandlerFunc, *jwksCache) {
	cache := newJWKSCache(cfg.Auth.JWKSUri)

	handler := func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if cfg.EffectiveBypass() {
			c.Set(principalKey, "dev-bypass")
			c.Next()
			return
		}

		tokenString, err := extractBearerToken(c)
		if err != nil {
			abortWithKind(c, errkind.AuthInvalid, err.Error())
			return
		}

		kf, err := cache.get(c.Request.Context())
		if err != nil {
			abortWithKind(c, errkind.RecordStoreUnavailable, "jwks unavailable")
			return
		}

		var claims BearerClaims
		token, err := jwt.ParseWithClaims(tokenString, &claims, kf.Keyfunc,
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(cfg.Auth.Issuer),
			jwt.WithAudience(cfg.Auth.Audience),
		)
		if err != nil || !token.Valid {
			if strings.Contains(fmt.Sprint(err), "expired") {
				abortWithKind(c, errkind.AuthExpired, "token expired")
				return
			}
			if strings.Contains(fmt.Sprint(err), "audience") || strings.Contains(fmt.Sprint(err), "issuer") {
				abortWithKind(c, errkind.AuthForbidden, "wrong issuer or audience")
				return
			}
			abortWithKind(c, errkind.AuthInvalid, "invalid token")
			return
		}

		c.Set(principalKey, claims.Subject)
		c.Next()
	}
	return handler, cache
}

func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("malformed authorization header")
	}
	return parts[1], nil
}

// GetPrincipal retrieves the authenticated subject from the Gin context.
func GetPrincipal(c *gin.Context) (string, bool) {
	if val, exists := c.Get(principalKey); exists {
		if id, ok := val.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

func abortWithKind(c *gin.Context, kind errkind.Kind, message string) {
	correlationID := GetCorrelationID(c)
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{
		"error": gin.H{
			"kind":          string(kind),
			"message":       message,
			"correlationId": correlationID,
			"retryable":     kind.Retryable(),
		},
	})
}
