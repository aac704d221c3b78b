package security_test

import (
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/chirino/collection-service/internal/security"
	"github.com/chirino/collection-service/internal/testutil/testkeycloak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_OIDC(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a keycloak container")
	}
	kc := testkeycloak.StartKeycloak(t)

	cfg := config.DefaultConfig()
	cfg.OIDCIssuer = kc.IssuerURL
	cfg.OIDCDiscoveryURL = kc.DiscoveryURL
	r := security.NewTokenResolver(&cfg)

	token, err := kc.AccessToken(t.Context(), "bob", "bob")
	require.NoError(t, err)

	id, err := r.Resolve(t.Context(), token, "", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)

	// Dotted tokens are verified; a forged one is rejected.
	_, err = r.Resolve(t.Context(), "aaa.bbb.ccc", "", "")
	require.Error(t, err)

	// Opaque tokens still fall back to API-key mode.
	id, err = r.Resolve(t.Context(), "carol", "", "")
	require.NoError(t, err)
	assert.Equal(t, "carol", id.UserID)
}
