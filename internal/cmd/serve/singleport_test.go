package serve

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/chirino/collection-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestStartSinglePortHTTP_ServesPlainAndTLS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	})
	running, err := StartSinglePortHTTP(t.Context(), config.ListenerConfig{
		EnablePlainText: true,
		EnableTLS:       true,
	}, handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close(t.Context()) })
	require.NotZero(t, running.Port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", running.Port))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "HTTP/1.1", string(body))

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
		ForceAttemptHTTP2: true,
	}}
	resp, err = client.Get(fmt.Sprintf("https://127.0.0.1:%d/", running.Port))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "HTTP/2.0", string(body))
}

func TestStartSinglePortHTTP_RequiresAListener(t *testing.T) {
	_, err := StartSinglePortHTTP(t.Context(), config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}
