// Package transporttest runs a loopback TLS server with a freshly minted
// self-signed certificate for tests of the session and the HTTP client.
package transporttest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"
)

// Server accepts TLS connections on 127.0.0.1 and hands each one to a
// handler. The connection is closed when the handler returns.
type Server struct {
	// CertPEM is the server certificate, usable as a trust anchor.
	CertPEM []byte
	// Addr is host:port of the listener.
	Addr string

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer starts a server that is shut down by t.Cleanup.
func NewServer(t testing.TB, handler func(conn net.Conn)) *Server {
	t.Helper()

	certPEM, cert := NewCertificate(t)
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}

	s := &Server{
		CertPEM:  certPEM,
		Addr:     listener.Addr().String(),
		listener: listener,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = listener.Close()
		s.wg.Wait()
	})
	return s
}

// URL returns an https URL for path on this server.
func (s *Server) URL(path string) string {
	return "https://" + s.Addr + path
}

// NewCertificate creates a self-signed certificate valid for 127.0.0.1 and
// localhost.
func NewCertificate(t testing.TB) ([]byte, tls.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "buildswap test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair: %v", err)
	}
	return certPEM, cert
}

// ReadRequest reads a request head up to and including the blank line.
func ReadRequest(conn net.Conn) (string, error) {
	var head []byte
	buf := make([]byte, 512)
	for !bytes.Contains(head, []byte("\r\n\r\n")) {
		n, err := conn.Read(buf)
		head = append(head, buf[:n]...)
		if err != nil {
			return string(head), err
		}
		if len(head) > 64<<10 {
			return string(head), errors.New("request head too large")
		}
	}
	return string(head), nil
}
