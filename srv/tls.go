package srv

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const certValidity = 365 * 24 * time.Hour

// serveTLS runs server over TLS, generating a self-signed certificate for
// the server's listen host when either file is missing.
func serveTLS(server *http.Server, certFile, keyFile string) error {
	if !fileExists(certFile) || !fileExists(keyFile) {
		if err := generateCertificates(certFile, keyFile, server.Addr); err != nil {
			return fmt.Errorf("failed to generate certificates: %w", err)
		}
	}
	server.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
	return server.ListenAndServeTLS(certFile, keyFile)
}

// certificateHosts lists the names a development certificate covers: the
// loopback names plus the host part of addr.
func certificateHosts(addr string) ([]string, []net.IP) {
	dnsNames := []string{"localhost"}
	ips := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	switch ip := net.ParseIP(host); {
	case host == "" || host == "localhost":
	case ip == nil:
		dnsNames = append(dnsNames, host)
	case ip.IsUnspecified() || ip.IsLoopback():
	default:
		ips = append(ips, ip)
	}
	return dnsNames, ips
}

func generateCertificates(certFile, keyFile, addr string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	dnsNames, ips := certificateHosts(addr)
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"picturebook development"},
		},
		NotBefore:             now,
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create certificate directory: %w", err)
		}
	}
	if err := writePEM(certFile, 0o644, "CERTIFICATE", derBytes); err != nil {
		return err
	}
	return writePEM(keyFile, 0o600, "PRIVATE KEY", privBytes)
}

func writePEM(path string, perm os.FileMode, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
