package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"admin-auth-service/internal/util"
)

// ErrNoCertificate is returned in production when neither ACME nor a
// configured key pair can serve the handshake.
var ErrNoCertificate = errors.New("no tls certificate available")

type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager

	mu       sync.Mutex
	fileCert *tls.Certificate
	devCert  *tls.Certificate
}

type TLSConfig struct {
	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	manager := &TLSManager{
		config: config,
	}

	if config.AutoCert && config.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		zap.String("domain", m.config.Domain),
		zap.String("cache_dir", m.config.AutoCertDir))
}

// GetCertificate tries ACME, then the configured key pair, and outside
// production finally a cached self-signed development certificate.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	if cert, err := m.loadFileCert(); err == nil && cert != nil {
		return cert, nil
	}

	if m.config.Environment == "production" {
		return nil, ErrNoCertificate
	}
	return m.selfSignedCert()
}

func (m *TLSManager) loadFileCert() (*tls.Certificate, error) {
	if m.config.CertFile == "" || m.config.KeyFile == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fileCert != nil {
		return m.fileCert, nil
	}
	cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
	if err != nil {
		util.Warn("Failed to load certificate files", zap.Error(err))
		return nil, err
	}
	m.fileCert = &cert
	return m.fileCert, nil
}

func (m *TLSManager) selfSignedCert() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.devCert != nil {
		return m.devCert, nil
	}

	generator := NewDevCertGenerator(m.config.AutoCertDir)
	hosts := []string{
		m.config.Domain,
		"localhost",
		"127.0.0.1",
		"::1",
	}

	cert, err := generator.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}

	util.Info("Using self-signed certificate", zap.Strings("hosts", hosts))
	m.devCert = &cert
	return m.devCert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
