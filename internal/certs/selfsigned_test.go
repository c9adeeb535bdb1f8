package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()
	cert, err := Generate(time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(cert.TLSCert.Certificate) == 0 {
		t.Fatal("no certificate data")
	}

	leaf, err := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse cert: %v", err)
	}
	if leaf.Subject.CommonName != "reel" {
		t.Errorf("CommonName = %q", leaf.Subject.CommonName)
	}
	if got := leaf.NotAfter.Sub(leaf.NotBefore); got != time.Hour {
		t.Errorf("validity = %v, want 1h", got)
	}
	if sha256.Sum256(cert.TLSCert.Certificate[0]) != cert.Fingerprint {
		t.Error("fingerprint does not match certificate")
	}
	if len(cert.FingerprintHex()) != 64 {
		t.Errorf("hex fingerprint length %d", len(cert.FingerprintHex()))
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	t.Parallel()
	cert, err := Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	leaf, _ := x509.ParseCertificate(cert.TLSCert.Certificate[0])
	if got := leaf.NotAfter.Sub(leaf.NotBefore); got != DefaultValidity {
		t.Errorf("validity = %v, want %v", got, DefaultValidity)
	}
}

func TestPinnedClientConfig(t *testing.T) {
	t.Parallel()
	a, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := PinnedClientConfig(a.FingerprintHex(), "reel")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.VerifyPeerCertificate(a.TLSCert.Certificate, nil); err != nil {
		t.Errorf("pinned cert rejected: %v", err)
	}
	if err := cfg.VerifyPeerCertificate(b.TLSCert.Certificate, nil); !errors.Is(err, ErrFingerprint) {
		t.Errorf("foreign cert: err = %v, want ErrFingerprint", err)
	}
	if err := cfg.VerifyPeerCertificate(nil, nil); !errors.Is(err, ErrFingerprint) {
		t.Errorf("empty chain: err = %v", err)
	}
}

func TestPinnedClientConfigInvalid(t *testing.T) {
	t.Parallel()
	for _, fp := range []string{"", "zz", strings.Repeat("ab", 31)} {
		if _, err := PinnedClientConfig(fp, "reel"); err == nil {
			t.Errorf("fingerprint %q accepted", fp)
		}
	}
}
