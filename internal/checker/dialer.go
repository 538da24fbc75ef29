package checker

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/August26/proxyprobe/internal/model"
)

// TransportFunc builds the round tripper used for a single probe. Every
// probe gets its own transport, so no connection is shared between probes.
type TransportFunc func(ep model.ProxyEndpoint) (http.RoundTripper, error)

// TransportOptions holds settings shared by the forward and tunnel transports.
type TransportOptions struct {
	// InsecureTLS disables certificate verification towards the target.
	InsecureTLS bool
}

func (o TransportOptions) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: o.InsecureTLS,
	}
}

// Forward builds an *http.Transport that relays through an HTTP(S) proxy.
//
// For both http and https proxies we talk plain HTTP to the proxy: an http
// target is sent as an absolute-form request, an https target goes through
// CONNECT, so TLS to the target stays end-to-end.
func (o TransportOptions) Forward(ep model.ProxyEndpoint) (http.RoundTripper, error) {
	u := ep.URL()
	u.Scheme = "http"

	return &http.Transport{
		Proxy:                 http.ProxyURL(u),
		DialContext:           (&net.Dialer{}).DialContext,
		TLSClientConfig:       o.tlsConfig(),
		DisableKeepAlives:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// Tunnel builds an *http.Transport whose connections are opened through a
// SOCKS4 or SOCKS5 proxy. The HTTP(S) exchange then runs unmodified inside
// the tunnel.
func (o TransportOptions) Tunnel(ep model.ProxyEndpoint) (http.RoundTripper, error) {
	// socks5 is built into x/net/proxy, socks4 is registered in socks4.go.
	dialer, err := proxy.FromURL(ep.URL(), &net.Dialer{})
	if err != nil {
		return nil, err
	}

	return &http.Transport{
		DialContext:           contextDial(dialer),
		TLSClientConfig:       o.tlsConfig(),
		DisableKeepAlives:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// contextDial adapts a proxy.Dialer to http.Transport.DialContext. Dialers
// without DialContext are run in a goroutine so ctx can still abandon them.
func contextDial(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		done := make(chan result, 1)
		go func() {
			c, err := d.Dial(network, addr)
			done <- result{conn: c, err: err}
		}()

		select {
		case r := <-done:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-done; r.conn != nil {
					_ = r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}
