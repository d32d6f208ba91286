package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/stretchr/testify/require"
)

func TestListenServesPlainAndTLSOnOnePort(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	})
	rs, err := listen("test", config.ListenerConfig{EnablePlainText: true, EnableTLS: true}, handler)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, rs.Close(ctx))
	})
	require.NotZero(t, rs.Port)

	plain, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", rs.Port))
	require.NoError(t, err)
	body, _ := io.ReadAll(plain.Body)
	_ = plain.Body.Close()
	require.Equal(t, "HTTP/1.1", string(body))

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		ForceAttemptHTTP2: true,
	}}
	secure, err := client.Get(fmt.Sprintf("https://127.0.0.1:%d/", rs.Port))
	require.NoError(t, err)
	body, _ = io.ReadAll(secure.Body)
	_ = secure.Body.Close()
	require.Equal(t, "HTTP/2.0", string(body))
}

func TestListenRequiresAProtocol(t *testing.T) {
	_, err := listen("test", config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}

func TestSelfSignedCertificateCoversLocalhost(t *testing.T) {
	cert, err := selfSignedCertificate(time.Now())
	require.NoError(t, err)
	require.NoError(t, cert.Leaf.VerifyHostname("localhost"))
	require.NoError(t, cert.Leaf.VerifyHostname("127.0.0.1"))
}
