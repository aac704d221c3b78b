package security

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/collection-service/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"
	// ContextKeyClientID is the gin context key for the calling client ID.
	ContextKeyClientID = "clientID"
)

// Identity holds the resolved caller identity from a bearer token.
type Identity struct {
	UserID   string
	ClientID string
}

// TokenResolver resolves bearer tokens to caller identities. It is built once
// at startup and shared by every HTTP route group.
type TokenResolver struct {
	verifier    *oidc.IDTokenVerifier
	apiKeys     map[string]string
	testingMode bool
}

// NewTokenResolver creates a TokenResolver from the application config. It
// performs one-time OIDC provider discovery if OIDCIssuer is configured.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	return &TokenResolver{
		verifier:    newVerifier(cfg),
		apiKeys:     cfg.APIKeys,
		testingMode: cfg.Mode == config.ModeTesting,
	}
}

func newVerifier(cfg *config.Config) *oidc.IDTokenVerifier {
	issuer := cfg.OIDCIssuer
	if issuer == "" {
		return nil
	}
	ctx := context.Background()
	discoveryURL := issuer
	if cfg.OIDCDiscoveryURL != "" && cfg.OIDCDiscoveryURL != issuer {
		// The discovery document is fetched from an internal address but tokens
		// carry the external issuer.
		ctx = oidc.InsecureIssuerURLContext(ctx, issuer)
		discoveryURL = cfg.OIDCDiscoveryURL
	}
	provider, err := oidc.NewProvider(ctx, discoveryURL)
	if err != nil {
		log.Error("Failed to initialize OIDC provider; falling back to API key auth", "issuer", discoveryURL, "err", err)
		return nil
	}
	log.Info("OIDC auth enabled", "issuer", issuer)
	if discoveryURL != issuer {
		var claims struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&claims); err == nil && claims.JWKSURI != "" {
			keySet := oidc.NewRemoteKeySet(ctx, claims.JWKSURI)
			return oidc.NewVerifier(issuer, keySet, &oidc.Config{SkipClientIDCheck: true})
		}
	}
	return provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
}

var (
	errInvalidJWT      = errors.New("invalid JWT")
	errMissingIdentity = errors.New("JWT missing identity claims")
	errEmptyToken      = errors.New("empty bearer token")
)

// Resolve turns a bearer token into an Identity. When OIDC is configured and
// the token looks like a JWT it is verified; otherwise the token is the user
// id. apiKey maps to a client id through the configured API keys.
// clientIDHeader is honored in testing mode only.
func (r *TokenResolver) Resolve(ctx context.Context, bearerToken, apiKey, clientIDHeader string) (*Identity, error) {
	id := &Identity{}

	if key := strings.TrimSpace(apiKey); key != "" {
		if resolved, ok := r.apiKeys[key]; ok {
			id.ClientID = resolved
		} else {
			log.Warn("Received invalid API key")
		}
	}
	if r.testingMode && id.ClientID == "" {
		id.ClientID = strings.TrimSpace(clientIDHeader)
	}

	if r.verifier == nil || strings.Count(bearerToken, ".") < 2 {
		id.UserID = strings.TrimSpace(bearerToken)
		if id.UserID == "" {
			return nil, errEmptyToken
		}
		return id, nil
	}

	idToken, err := r.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	// Prefer preferred_username, then upn, then sub.
	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		UPN               string `json:"upn"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	for _, candidate := range []string{claims.PreferredUsername, claims.UPN, claims.Sub} {
		if candidate != "" {
			id.UserID = candidate
			return id, nil
		}
	}
	return nil, errMissingIdentity
}

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetClientID returns the calling client ID from the gin context.
func GetClientID(c *gin.Context) string {
	return c.GetString(ContextKeyClientID)
}

// AuthMiddleware returns a gin middleware that extracts user identity from the
// Authorization header using the provided TokenResolver.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			log.Info("Auth rejected: missing Authorization header", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth {
			log.Info("Auth rejected: invalid Authorization header; expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header; expected Bearer token"})
			return
		}

		id, err := resolver.Resolve(
			c.Request.Context(),
			token,
			c.GetHeader("X-API-Key"),
			c.GetHeader("X-Client-ID"),
		)
		if err != nil {
			log.Info("Auth rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		if id.ClientID != "" {
			c.Set(ContextKeyClientID, id.ClientID)
		}
		c.Next()
	}
}
