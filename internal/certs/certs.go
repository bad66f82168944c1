// Package certs creates self-signed ECDSA P-256 certificates for the QUIC
// transport and builds TLS configs that pin a peer by certificate
// fingerprint instead of a CA chain.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"
)

const defaultValidity = 7 * 24 * time.Hour

// ErrFingerprintMismatch is returned by the pinned verifier.
var ErrFingerprintMismatch = errors.New("certs: peer certificate fingerprint mismatch")

// CertInfo holds a TLS certificate and its SHA-256 fingerprint.
type CertInfo struct {
	TLSCert     tls.Certificate
	Fingerprint [32]byte
	NotAfter    time.Time
}

// FingerprintBase64 returns the SHA-256 fingerprint as base64.
func (c *CertInfo) FingerprintBase64() string {
	return base64.StdEncoding.EncodeToString(c.Fingerprint[:])
}

// FingerprintHex returns the SHA-256 fingerprint as lowercase hex.
func (c *CertInfo) FingerprintHex() string {
	return hex.EncodeToString(c.Fingerprint[:])
}

// ServerTLS returns a server config presenting this certificate.
func (c *CertInfo) ServerTLS(alpn ...string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.TLSCert},
		NextProtos:   alpn,
		MinVersion:   tls.VersionTLS13,
	}
}

// Generate creates a self-signed certificate for localhost plus the given
// extra hosts (DNS names or IP literals). A non-positive validity selects
// seven days.
func Generate(validity time.Duration, hosts ...string) (*CertInfo, error) {
	if validity <= 0 {
		validity = defaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	notBefore := time.Now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "wfdcast"},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	return &CertInfo{
		TLSCert: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		},
		Fingerprint: sha256.Sum256(der),
		NotAfter:    template.NotAfter,
	}, nil
}

// ParseFingerprint accepts a SHA-256 fingerprint as hex (with or without
// colons) or standard base64.
func ParseFingerprint(s string) ([32]byte, error) {
	var fp [32]byte
	s = strings.TrimSpace(s)

	if b, err := hex.DecodeString(strings.ReplaceAll(s, ":", "")); err == nil && len(b) == len(fp) {
		copy(fp[:], b)
		return fp, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == len(fp) {
		copy(fp[:], b)
		return fp, nil
	}
	return fp, fmt.Errorf("certs: %q is not a SHA-256 fingerprint", s)
}

// PinnedClientTLS returns a client config that accepts only a leaf
// certificate whose SHA-256 matches fingerprint. A zero fingerprint
// accepts any certificate.
func PinnedClientTLS(fingerprint [32]byte, alpn ...string) *tls.Config {
	return &tls.Config{
		NextProtos:         alpn,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			if fingerprint == ([32]byte{}) {
				return nil
			}
			if len(raw) == 0 {
				return ErrFingerprintMismatch
			}
			got := sha256.Sum256(raw[0])
			if subtle.ConstantTimeCompare(got[:], fingerprint[:]) != 1 {
				return ErrFingerprintMismatch
			}
			return nil
		},
	}
}
