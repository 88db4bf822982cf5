package tlstrust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, cn string, dnsNames ...string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"PlayPalace"}},
		Issuer:       pkix.Name{CommonName: cn},
		DNSNames:     dnsNames,
		NotBefore:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestNewCertificateInfo(t *testing.T) {
	cert := selfSignedCert(t, "play.example.org", "alt.example.org")

	info := NewCertificateInfo("PLAY.example.org", cert)
	assert.Equal(t, "play.example.org", info.CommonName)
	assert.Equal(t, []string{"alt.example.org"}, info.SubjectAltNames)
	assert.Equal(t, "CN=play.example.org, O=PlayPalace", info.Issuer)
	assert.True(t, info.MatchesHost)
	assert.Len(t, info.FingerprintHex, 64)
	assert.Equal(t, strings.ToUpper(info.FingerprintHex), info.FingerprintHex)
	assert.Len(t, info.FingerprintDisplay, 64+31)
	assert.Equal(t, "ECDSA P-256", info.KeyAlgorithm)
	assert.False(t, info.Expired(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, info.Expired(time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.True(t, NewCertificateInfo("alt.example.org", cert).MatchesHost)
	assert.False(t, NewCertificateInfo("evil.example.org", cert).MatchesHost)
}

func TestParseCertificatePEM(t *testing.T) {
	cert := selfSignedCert(t, "play.example.org")
	info := NewCertificateInfo("play.example.org", cert)

	parsed, err := ParseCertificatePEM("play.example.org", info.PEM)
	require.NoError(t, err)
	assert.Equal(t, info.FingerprintHex, parsed.FingerprintHex)

	_, err = ParseCertificatePEM("x", "garbage")
	assert.ErrorIs(t, err, ErrInvalidPEM)
}

func TestFingerprintForms(t *testing.T) {
	assert.Equal(t, "AB:CD:EF", DisplayFingerprint("abcdef"))
	assert.Equal(t, "ABCDEF", NormalizeFingerprint("ab:cd:ef"))
	assert.Equal(t, "ABCDEF", NormalizeFingerprint(DisplayFingerprint("ABCDEF")))
}

func TestInspectorClosesProbe(t *testing.T) {
	var opened, closed atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			opened.Add(1)
		case http.StateClosed:
			closed.Add(1)
		}
	}
	srv.StartTLS()
	defer srv.Close()

	info, err := NewInspector(time.Second).Inspect(t.Context(), wssURL(srv))
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(srv.Certificate()), info.FingerprintHex)
	assert.Equal(t, "127.0.0.1", info.Host)

	require.Eventually(t, func() bool {
		return opened.Load() == 1 && closed.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInspectorRejectsPlainURL(t *testing.T) {
	_, err := NewInspector(0).Inspect(t.Context(), "ws://127.0.0.1:1")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
