package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// ExpiringWithinDays is the remaining lifetime below which a certificate is
// reported as expiring.
const ExpiringWithinDays = 30

const dialTimeout = 10 * time.Second

// CertStatus describes the leaf certificate of one endpoint.
type CertStatus struct {
	Endpoint string    `json:"endpoint"`
	Status   string    `json:"status"`
	Issuer   string    `json:"issuer,omitempty"`
	NotAfter time.Time `json:"not_after,omitempty"`
	DaysLeft int       `json:"days_left"`
}

// now is swapped in tests.
var now = time.Now

// Check dials the TLS endpoint of baseURL and returns the state of its leaf
// certificate. Non-HTTPS URLs return nil.
func Check(ctx context.Context, baseURL string, insecureSkipVerify bool) *CertStatus {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: baseURL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now()).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= ExpiringWithinDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}
