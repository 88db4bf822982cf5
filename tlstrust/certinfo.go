package tlstrust

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chrisnestrud/PlayPalace11/internal/util"
)

// ErrInvalidPEM is returned when PEM data does not hold a certificate.
var ErrInvalidPEM = errors.New("invalid certificate PEM")

// CertificateInfo describes a server certificate for presentation to a
// human or for fingerprint comparison. It is never persisted directly.
type CertificateInfo struct {
	Host               string
	CommonName         string
	SubjectAltNames    []string
	Issuer             string
	ValidFrom          time.Time
	ValidTo            time.Time
	FingerprintHex     string
	FingerprintDisplay string
	PEM                string
	MatchesHost        bool
	KeyAlgorithm       string

	// PinnedFingerprint is set when the server already has a trust record,
	// so a re-pin prompt can show both values.
	PinnedFingerprint string
}

// NewCertificateInfo derives CertificateInfo for cert as presented by host.
func NewCertificateInfo(host string, cert *x509.Certificate) *CertificateInfo {
	fp := Fingerprint(cert)
	info := &CertificateInfo{
		Host:               host,
		CommonName:         cert.Subject.CommonName,
		SubjectAltNames:    append([]string(nil), cert.DNSNames...),
		Issuer:             subjectString(cert.Issuer),
		ValidFrom:          cert.NotBefore.UTC(),
		ValidTo:            cert.NotAfter.UTC(),
		FingerprintHex:     fp,
		FingerprintDisplay: DisplayFingerprint(fp),
		PEM:                encodePEM(cert),
		KeyAlgorithm:       keyAlgorithmString(cert),
	}
	info.MatchesHost = matchesHost(host, info.CommonName, info.SubjectAltNames)
	return info
}

// Expired reports whether now falls outside the validity window.
func (c *CertificateInfo) Expired(now time.Time) bool {
	return now.Before(c.ValidFrom) || now.After(c.ValidTo)
}

// Fingerprint returns the uppercase hex SHA-256 digest of cert's DER bytes.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DisplayFingerprint splits a hex fingerprint into colon-separated byte pairs.
func DisplayFingerprint(hexFP string) string {
	hexFP = strings.ToUpper(hexFP)
	if len(hexFP) < 2 {
		return hexFP
	}
	pairs := make([]string, 0, len(hexFP)/2)
	for i := 0; i+1 < len(hexFP); i += 2 {
		pairs = append(pairs, hexFP[i:i+2])
	}
	return strings.Join(pairs, ":")
}

// NormalizeFingerprint strips separators and upper-cases a fingerprint so
// display and hex forms compare equal.
func NormalizeFingerprint(fp string) string {
	fp = strings.ReplaceAll(fp, ":", "")
	fp = strings.ReplaceAll(fp, " ", "")
	return strings.ToUpper(fp)
}

// ParseCertificatePEM decodes a PEM certificate and describes it as if
// presented by host.
func ParseCertificatePEM(host, certPEM string) (*CertificateInfo, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return NewCertificateInfo(host, cert), nil
}

func encodePEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

func matchesHost(host, commonName string, sans []string) bool {
	if util.EqualHost(host, commonName) {
		return true
	}
	for _, san := range sans {
		if util.EqualHost(host, san) {
			return true
		}
	}
	return false
}

// subjectString formats a pkix.Name as a readable DN string.
func subjectString(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, l := range name.Locality {
		parts = append(parts, "L="+l)
	}
	for _, p := range name.Province {
		parts = append(parts, "ST="+p)
	}
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ", ")
}

func keyAlgorithmString(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s", pub.Curve.Params().Name)
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}
