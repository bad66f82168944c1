package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"net"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	cert, err := Generate(24*time.Hour, "sink.local", "192.168.49.1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cert.TLSCert.Certificate) == 0 {
		t.Fatal("no certificate data")
	}

	x, err := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v := x.NotAfter.Sub(x.NotBefore); v != 24*time.Hour {
		t.Errorf("validity = %v, want 24h", v)
	}
	if err := x.VerifyHostname("sink.local"); err != nil {
		t.Errorf("VerifyHostname(sink.local): %v", err)
	}
	if err := x.VerifyHostname("192.168.49.1"); err != nil {
		t.Errorf("VerifyHostname(192.168.49.1): %v", err)
	}
	if !x.IPAddresses[0].Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("first IP = %v, want 127.0.0.1", x.IPAddresses[0])
	}
	if sha256.Sum256(cert.TLSCert.Certificate[0]) != cert.Fingerprint {
		t.Error("fingerprint does not match certificate")
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	t.Parallel()

	cert, err := Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	x, _ := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if v := x.NotAfter.Sub(x.NotBefore); v != defaultValidity {
		t.Errorf("validity = %v, want %v", v, defaultValidity)
	}
}

func TestParseFingerprint(t *testing.T) {
	t.Parallel()

	cert, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{cert.FingerprintHex(), cert.FingerprintBase64()} {
		fp, err := ParseFingerprint(s)
		if err != nil {
			t.Errorf("ParseFingerprint(%q): %v", s, err)
			continue
		}
		if fp != cert.Fingerprint {
			t.Errorf("ParseFingerprint(%q) mismatch", s)
		}
	}
	if _, err := ParseFingerprint("abcd"); err == nil {
		t.Error("short fingerprint should fail")
	}
}

func TestPinnedClientTLS(t *testing.T) {
	t.Parallel()

	cert, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	other, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	raw := cert.TLSCert.Certificate

	if err := PinnedClientTLS(cert.Fingerprint).VerifyPeerCertificate(raw, nil); err != nil {
		t.Errorf("matching pin rejected: %v", err)
	}
	if err := PinnedClientTLS(other.Fingerprint).VerifyPeerCertificate(raw, nil); !errors.Is(err, ErrFingerprintMismatch) {
		t.Errorf("wrong pin = %v, want ErrFingerprintMismatch", err)
	}
	if err := PinnedClientTLS([32]byte{}).VerifyPeerCertificate(raw, nil); err != nil {
		t.Errorf("zero pin should accept: %v", err)
	}
}
