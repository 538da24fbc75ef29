package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

func init() {
	proxy.RegisterDialerType("socks4", newSOCKS4Dialer)
}

// socks4Dialer implements SOCKS4 CONNECT. Hostname destinations use the
// SOCKS4a extension so they are resolved by the proxy, not locally.
type socks4Dialer struct {
	proxyAddr string
	userID    string
	forward   proxy.Dialer
}

func newSOCKS4Dialer(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	port := u.Port()
	if port == "" {
		port = "1080"
	}
	d := &socks4Dialer{
		proxyAddr: net.JoinHostPort(u.Hostname(), port),
		forward:   forward,
	}
	if u.User != nil {
		d.userID = u.User.Username()
	}
	return d, nil
}

func (d *socks4Dialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *socks4Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4":
	default:
		return nil, fmt.Errorf("socks4: network %q not supported", network)
	}

	req, err := socks4ConnectRequest(addr, d.userID)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	if cd, ok := d.forward.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", d.proxyAddr)
	} else {
		conn, err = d.forward.Dial("tcp", d.proxyAddr)
	}
	if err != nil {
		return nil, err
	}

	if err := socks4Handshake(ctx, conn, req); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// socks4ConnectRequest encodes VN=4, CD=1, DSTPORT, DSTIP, USERID, NUL and,
// for SOCKS4a, the NUL-terminated hostname.
func socks4ConnectRequest(addr, userID string) ([]byte, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("socks4: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("socks4: invalid port %q", portStr)
	}

	req := make([]byte, 0, 9+len(userID)+len(host)+1)
	req = append(req, 0x04, 0x01, byte(port>>8), byte(port))

	var domain string
	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("socks4: IPv6 destination %s not supported", host)
		}
		req = append(req, ip4...)
	} else {
		if host == "" || len(host) > 255 {
			return nil, fmt.Errorf("socks4: invalid destination host length %d", len(host))
		}
		req = append(req, 0, 0, 0, 1)
		domain = host
	}

	req = append(req, userID...)
	req = append(req, 0x00)
	if domain != "" {
		req = append(req, domain...)
		req = append(req, 0x00)
	}
	return req, nil
}

func socks4Handshake(ctx context.Context, conn net.Conn, req []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("socks4: write request: %w", err)
	}

	// VN, CD, DSTPORT(2), DSTIP(4)
	var rep [8]byte
	if _, err := io.ReadFull(conn, rep[:]); err != nil {
		return fmt.Errorf("socks4: read reply: %w", err)
	}
	// VN should be 0; some servers echo 4.
	if rep[0] != 0x00 && rep[0] != 0x04 {
		return fmt.Errorf("socks4: unexpected reply version 0x%02x", rep[0])
	}
	if rep[1] != 0x5a {
		return errors.New("socks4: " + socks4ReplyString(rep[1]))
	}
	return nil
}

func socks4ReplyString(cd byte) string {
	switch cd {
	case 0x5a:
		return "request granted"
	case 0x5b:
		return "request rejected or failed"
	case 0x5c:
		return "request rejected: identd unreachable"
	case 0x5d:
		return "request rejected: identd user mismatch"
	default:
		return fmt.Sprintf("unknown reply code 0x%02x", cd)
	}
}
