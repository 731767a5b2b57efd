package chromeui

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net"
	"net/url"
	"time"

	"pkt.systems/juno/core"
)

// Chromium net error names reported for certificate failures.
const (
	CertAuthorityInvalid  = "net::ERR_CERT_AUTHORITY_INVALID"
	CertCommonNameInvalid = "net::ERR_CERT_COMMON_NAME_INVALID"
	CertDateInvalid       = "net::ERR_CERT_DATE_INVALID"
	CertInvalid           = "net::ERR_CERT_INVALID"
)

var probeTimeout = 5 * time.Second

// probeCertificate connects to an https URL and reports a certificate
// verification failure. It returns nil, nil for a trusted certificate and
// for URLs that are not https; other connection errors are returned as-is.
func probeCertificate(ctx context.Context, rawURL string, roots *x509.CertPool) (*core.CertificateError, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return nil, nil
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: probeTimeout},
		Config:    &tls.Config{ServerName: host, RootCAs: roots},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err == nil {
		_ = conn.Close()
		return nil, nil
	}
	var verr *tls.CertificateVerificationError
	if !errors.As(err, &verr) || len(verr.UnverifiedCertificates) == 0 {
		return nil, err
	}
	leaf := verr.UnverifiedCertificates[0]
	return &core.CertificateError{
		URL:         rawURL,
		Code:        certificateErrorCode(err),
		Issuer:      issuerName(leaf),
		Certificate: encodeCertificate(leaf),
	}, nil
}

func certificateErrorCode(err error) string {
	var unknown x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	switch {
	case errors.As(err, &unknown):
		return CertAuthorityInvalid
	case errors.As(err, &hostname):
		return CertCommonNameInvalid
	case errors.As(err, &invalid) && invalid.Reason == x509.Expired:
		return CertDateInvalid
	default:
		return CertInvalid
	}
}

func issuerName(cert *x509.Certificate) string {
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	return cert.Issuer.String()
}

func encodeCertificate(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}
