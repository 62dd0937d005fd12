// Package security inspects the TLS certificate of https telemetry sources so
// an expiring certificate shows up before it breaks polling.
package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/pkg/types"
)

const (
	dialTimeout  = 10 * time.Second
	expiringDays = 30
)

// Check dials the source endpoint and describes its leaf certificate.
// It returns nil for sources that are not http, or whose endpoint is not https.
func Check(ctx context.Context, src config.Source) *types.CertStatus {
	return CheckAt(ctx, src, time.Now())
}

// CheckAt is Check with an explicit clock.
func CheckAt(ctx context.Context, src config.Source, now time.Time) *types.CertStatus {
	if src.Kind != "" && src.Kind != config.KindHTTP {
		return nil
	}
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &types.CertStatus{Endpoint: src.Endpoint, CheckedAt: now}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peers[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	if cs.Issuer == "" && len(leaf.Issuer.Organization) > 0 {
		cs.Issuer = leaf.Issuer.Organization[0]
	}
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= expiringDays:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}
