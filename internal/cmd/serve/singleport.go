package serve

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/charmbracelet/log"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunningServers is one bound port and the HTTP servers behind it.
type RunningServers struct {
	Addr    net.Addr
	Port    int
	servers []*http.Server
	base    net.Listener
	once    sync.Once
}

// Close shuts the servers down gracefully, then releases the port.
func (r *RunningServers) Close(ctx context.Context) error {
	var errs []error
	r.once.Do(func() {
		for _, srv := range r.servers {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
		_ = r.base.Close()
	})
	return errors.Join(errs...)
}

// listen binds cfg.Port and serves handler on it. cmux splits TLS from
// plaintext; plaintext speaks HTTP/1.1 and h2c so SSE streams can share
// one connection with API calls.
func listen(name string, cfg config.ListenerConfig, handler http.Handler) (*RunningServers, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		return nil, fmt.Errorf("%s listener needs plaintext or tls enabled", name)
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	var cert tls.Certificate
	if cfg.EnableTLS {
		var err error
		if cert, err = loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
			return nil, err
		}
	}

	base, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%s listen failed: %w", name, err)
	}
	rs := &RunningServers{Addr: base.Addr(), base: base}
	if tcp, ok := base.Addr().(*net.TCPAddr); ok {
		rs.Port = tcp.Port
	}

	muxer := cmux.New(base)
	// TLS must be matched before the catch-all plaintext matcher.
	if cfg.EnableTLS {
		lis := tls.NewListener(muxer.Match(cmux.TLS()), &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
		rs.serve(name+"/tls", lis, handler, cfg.ReadHeaderTimeout)
	}
	if cfg.EnablePlainText {
		rs.serve(name+"/plain", muxer.Match(cmux.Any()), h2c.NewHandler(handler, &http2.Server{}), cfg.ReadHeaderTimeout)
	}

	go func() {
		if err := muxer.Serve(); err != nil && !errors.Is(err, net.ErrClosed) && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Error("Listener mux stopped", "listener", name, "err", err)
		}
	}()

	log.Debug("Listener bound", "listener", name, "addr", rs.Addr, "tls", cfg.EnableTLS, "plaintext", cfg.EnablePlainText)
	return rs, nil
}

func (r *RunningServers) serve(name string, lis net.Listener, handler http.Handler, readHeaderTimeout time.Duration) {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	r.servers = append(r.servers, srv)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "listener", name, "err", err)
		}
	}()
}

// loadServerCertificate falls back to a throwaway self-signed localhost
// certificate when no files are configured.
func loadServerCertificate(certFile, keyFile string) (tls.Certificate, error) {
	certFile, keyFile = strings.TrimSpace(certFile), strings.TrimSpace(keyFile)
	if certFile == "" || keyFile == "" {
		log.Warn("No TLS certificate configured, using a self-signed one")
		return selfSignedCertificate(time.Now())
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load tls certificate: %w", err)
	}
	return cert, nil
}

func selfSignedCertificate(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls key failed: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls serial failed: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"agora"}},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls certificate failed: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse tls certificate failed: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
