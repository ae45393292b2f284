// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// tlsConfig materialises TLS material for the SSL and SASL_SSL protocols.
// Endpoint identification follows the Kafka convention: unset disables
// hostname verification (self-signed test CAs keep working), "https" turns
// full verification on. Disabled hostname verification still checks the
// chain, against the truststore when one is given and against the system
// roots otherwise.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if !c.tlsEnabled() {
		return nil, nil
	}
	t := &tls.Config{MinVersion: tls.VersionTLS12}

	var roots *x509.CertPool
	if c.SSLTruststoreLocation != "" {
		pemBytes, err := os.ReadFile(c.SSLTruststoreLocation)
		if err != nil {
			return nil, fmt.Errorf("%w: truststore: %v", ErrConfig, err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("%w: truststore %s holds no CA certificates", ErrConfig, c.SSLTruststoreLocation)
		}
		t.RootCAs = roots
	}

	if !strings.EqualFold(c.SSLEndpointIdentification, "https") {
		t.InsecureSkipVerify = true
		t.VerifyPeerCertificate = verifyChainOnly(roots)
	}

	if c.SSLKeystoreLocation != "" {
		cert, err := c.clientCertificate()
		if err != nil {
			return nil, err
		}
		t.Certificates = []tls.Certificate{*cert}
	}
	return t, nil
}

// verifyChainOnly validates the peer chain against roots, or against the
// system pool when roots is nil, without checking the hostname. That matches
// what disabling endpoint identification means to a Java Kafka client.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("kafka: broker presented no certificates")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("kafka: parsing broker certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
		for _, ic := range certs[1:] {
			opts.Intermediates.AddCert(ic)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}

// clientCertificate loads the keystore PEM: one or more CERTIFICATE blocks
// and the private key, which may be an encrypted PKCS#8 block protected by
// the key password (falling back to the keystore password).
func (c *Config) clientCertificate() (*tls.Certificate, error) {
	pemBytes, err := os.ReadFile(c.SSLKeystoreLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: keystore: %v", ErrConfig, err)
	}

	var cert tls.Certificate
	var keyBlock *pem.Block
	for rest := pemBytes; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			cert.Certificate = append(cert.Certificate, block.Bytes)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keyBlock = block
		}
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("%w: keystore %s holds no certificate", ErrConfig, c.SSLKeystoreLocation)
	}
	if keyBlock == nil {
		return nil, fmt.Errorf("%w: keystore %s holds no private key", ErrConfig, c.SSLKeystoreLocation)
	}

	cert.PrivateKey, err = c.parsePrivateKey(keyBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: keystore %s: %v", ErrConfig, c.SSLKeystoreLocation, err)
	}
	return &cert, nil
}

func (c *Config) parsePrivateKey(block *pem.Block) (any, error) {
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		password := c.SSLKeyPassword
		if password == "" {
			password = c.SSLKeystorePassword
		}
		if password == "" {
			return nil, errors.New("encrypted private key but no KAFKA_SSL_KEY_PASSWORD")
		}
		return decryptPKCS8(block.Bytes, []byte(password))
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
