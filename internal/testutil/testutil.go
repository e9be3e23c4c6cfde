package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// StaticResponse returns a RoundTripper that always responds with status and body.
func StaticResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// RecordedRequest is a snapshot of a request received by RecordingServer.
type RecordedRequest struct {
	Method        string
	Path          string
	Host          string
	Header        http.Header
	Body          string
	ContentLength int64
	Close         bool
}

// RecordingServer is a loopback HTTP server that records every request and
// answers with a fixed status and body.
type RecordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	status   int
	body     string
}

// NewRecordingServer starts a RecordingServer answering status and body.
func NewRecordingServer(tb testing.TB, status int, body string) *RecordingServer {
	tb.Helper()

	rs := &RecordingServer{status: status, body: body}
	rs.Server = NewLocalHTTPServer(tb, http.HandlerFunc(rs.serve))
	return rs
}

func (rs *RecordingServer) serve(w http.ResponseWriter, r *http.Request) {
	payload, _ := io.ReadAll(r.Body) // Error intentionally ignored in test helper

	rs.mu.Lock()
	rs.requests = append(rs.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Host:          r.Host,
		Header:        r.Header.Clone(),
		Body:          string(payload),
		ContentLength: r.ContentLength,
		Close:         r.Close,
	})
	status, body := rs.status, rs.body
	rs.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Requests returns a copy of the recorded requests.
func (rs *RecordingServer) Requests() []RecordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make([]RecordedRequest, len(rs.requests))
	copy(out, rs.requests)
	return out
}

// Last returns the most recent request. It fails the test if there is none.
func (rs *RecordingServer) Last(tb testing.TB) RecordedRequest {
	tb.Helper()

	reqs := rs.Requests()
	if len(reqs) == 0 {
		tb.Fatal("no request recorded")
	}
	return reqs[len(reqs)-1]
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}

// TestKeyID is the kid used by JWKSDocument and SignToken.
const TestKeyID = "test-key-1"

// JWKSDocument renders publicKey as a single-key JWKS JSON document.
func JWKSDocument(tb testing.TB, publicKey *rsa.PublicKey) string {
	tb.Helper()

	// Encode public key modulus and exponent to base64url
	jwks := map[string]interface{}{
		"keys": []map[string]interface{}{
			{
				"kty": "RSA",
				"kid": TestKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
			},
		},
	}

	doc, err := json.Marshal(jwks)
	if err != nil {
		tb.Fatalf("failed to encode JWKS: %v", err)
	}
	return string(doc)
}

// GenerateTestKey generates a new RSA key for signing test tokens.
func GenerateTestKey(tb testing.TB) *rsa.PrivateKey {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate RSA key pair: %v", err)
	}
	return privateKey
}

// NewJWTClaims returns valid default claims for issuer, audience and subject.
func NewJWTClaims(issuer, audience, subject string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": issuer,
		"aud": []string{audience},
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

// SignToken signs claims with RS256 under TestKeyID.
func SignToken(tb testing.TB, privateKey *rsa.PrivateKey, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID

	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}

	return tokenString
}
