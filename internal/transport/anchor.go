package transport

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed assets/cacert.pem
var defaultAnchor []byte

// DefaultTrustAnchor returns the certificate bundle compiled into the binary.
func DefaultTrustAnchor() []byte {
	return defaultAnchor
}

// LoadTrustAnchor reads a PEM bundle from path. An empty path selects the
// embedded bundle.
func LoadTrustAnchor(path string) ([]byte, error) {
	if path == "" {
		return DefaultTrustAnchor(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust anchor: %w", err)
	}
	return data, nil
}
