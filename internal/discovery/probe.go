package discovery

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// DefaultProbeTimeout bounds a single probe when none is configured.
const DefaultProbeTimeout = 1500 * time.Millisecond

// Prober checks whether a broker is listening at an address.
type Prober interface {
	Probe(ctx context.Context, host string, port int) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, host string, port int) bool

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, host string, port int) bool {
	return f(ctx, host, port)
}

// TLSProber reports a host as present when a TLS handshake on the port
// completes. The robot broker uses a self-signed certificate, so the
// certificate is not verified; a plain TCP listener on the port is not
// enough to count.
type TLSProber struct {
	Timeout time.Duration
}

// Probe dials host:port and performs a TLS handshake within the timeout.
func (p TLSProber) Probe(ctx context.Context, host string, port int) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	defer conn.Close()

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec // presence check against a self-signed broker
		MinVersion:         tls.VersionTLS12,
	})
	return tlsConn.HandshakeContext(ctx) == nil
}
