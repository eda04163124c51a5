package utils

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/spf13/afero"

	"github.com/voidshard/flashd/pkg/errors"
)

// TLSFiles are the PEM files flashd uses to reach a TLS secured service (the event
// queue's redis).
type TLSFiles struct {
	CACert string
	Cert   string
	Key    string
}

// Empty returns if no files are set, in which case TLS isn't used
func (f *TLSFiles) Empty() bool {
	return f.CACert == "" && f.Cert == "" && f.Key == ""
}

// Config returns a client config for talking to addr (host:port), or nil if no files
// are set. A client certificate needs both Cert & Key.
func (f *TLSFiles) Config(fs afero.Fs, addr string) (*tls.Config, error) {
	if f.Empty() {
		return nil, nil
	}
	if (f.Cert == "") != (f.Key == "") {
		return nil, fmt.Errorf("%w tls cert & key must be given together", errors.ErrInvalidArg)
	}

	cfg := &tls.Config{
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP384, tls.CurveP256},
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		cfg.ServerName = host
	}

	if f.Cert != "" {
		certPEM, err := afero.ReadFile(fs, f.Cert)
		if err != nil {
			return nil, fmt.Errorf("%w reading tls cert: %v", errors.ErrInvalidArg, err)
		}
		keyPEM, err := afero.ReadFile(fs, f.Key)
		if err != nil {
			return nil, fmt.Errorf("%w reading tls key: %v", errors.ErrInvalidArg, err)
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w %v", errors.ErrInvalidArg, err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	if f.CACert != "" {
		caPEM, err := afero.ReadFile(fs, f.CACert)
		if err != nil {
			return nil, fmt.Errorf("%w reading tls ca cert: %v", errors.ErrInvalidArg, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w no certificates in %s", errors.ErrInvalidArg, f.CACert)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
