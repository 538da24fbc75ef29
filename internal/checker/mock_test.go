package checker

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const echoIP = "203.0.113.7"

func echoHandler(origin string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"origin": origin})
	}
}

// newEchoServer answers every request with {"origin": echoIP}.
func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(echoHandler(echoIP))
	t.Cleanup(srv.Close)
	return srv
}

// newForwardProxy pretends to be an HTTP forward proxy: absolute-form
// requests are answered by handler, CONNECT requests are tunneled to the
// requested host.
func newForwardProxy(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method == http.MethodConnect {
			tunnelConnect(w, r)
			return
		}
		if !r.URL.IsAbs() {
			http.Error(w, "expected absolute-form request", http.StatusBadRequest)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func tunnelConnect(w http.ResponseWriter, r *http.Request) {
	up, err := net.Dial("tcp", r.Host)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		up.Close()
		http.Error(w, "no hijacker", http.StatusInternalServerError)
		return
	}
	c, _, err := hj.Hijack()
	if err != nil {
		up.Close()
		return
	}
	_, _ = c.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
	pipe(c, up)
}

func pipe(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(a, b)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(b, a)
		done <- struct{}{}
	}()
	<-done
	_ = a.Close()
	_ = b.Close()
}

// socksServer is a minimal SOCKS4/4a or SOCKS5 server. Domain names listed
// in hosts are mapped to the given IP, everything else is dialed as asked.
type socksServer struct {
	ln      net.Listener
	version byte
	hosts   map[string]string
	hits    atomic.Int32

	mu      sync.Mutex
	userIDs []string
	domains []string
}

func startSOCKS(t *testing.T, version byte, hosts map[string]string) *socksServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &socksServer{ln: ln, version: version, hosts: hosts}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			s.hits.Add(1)
			if version == 4 {
				go s.handle4(c)
			} else {
				go s.handle5(c)
			}
		}
	}()
	return s
}

func (s *socksServer) Addr() string { return s.ln.Addr().String() }

func (s *socksServer) resolve(host string) string {
	if ip, ok := s.hosts[host]; ok {
		return ip
	}
	return host
}

func (s *socksServer) handle5(c net.Conn) {
	br := bufio.NewReader(c)

	var greet [2]byte
	if _, err := io.ReadFull(br, greet[:]); err != nil || greet[0] != 0x05 {
		c.Close()
		return
	}
	if _, err := io.ReadFull(br, make([]byte, greet[1])); err != nil {
		c.Close()
		return
	}
	_, _ = c.Write([]byte{0x05, 0x00})

	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		c.Close()
		return
	}
	var host string
	switch hdr[3] {
	case 0x01:
		ip := make([]byte, 4)
		_, _ = io.ReadFull(br, ip)
		host = net.IP(ip).String()
	case 0x04:
		ip := make([]byte, 16)
		_, _ = io.ReadFull(br, ip)
		host = net.IP(ip).String()
	case 0x03:
		l, _ := br.ReadByte()
		name := make([]byte, l)
		_, _ = io.ReadFull(br, name)
		host = string(name)
		s.mu.Lock()
		s.domains = append(s.domains, host)
		s.mu.Unlock()
	}
	var pb [2]byte
	_, _ = io.ReadFull(br, pb[:])
	port := binary.BigEndian.Uint16(pb[:])

	up, err := net.Dial("tcp", net.JoinHostPort(s.resolve(host), strconv.Itoa(int(port))))
	if err != nil {
		_, _ = c.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		c.Close()
		return
	}
	_, _ = c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	pipe(c, up)
}

func (s *socksServer) handle4(c net.Conn) {
	br := bufio.NewReader(c)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil || hdr[0] != 0x04 || hdr[1] != 0x01 {
		c.Close()
		return
	}
	port := binary.BigEndian.Uint16(hdr[2:4])
	ip := net.IP(hdr[4:8])

	userID, err := br.ReadString(0)
	if err != nil {
		c.Close()
		return
	}
	host := ip.String()
	var domain string
	if hdr[4] == 0 && hdr[5] == 0 && hdr[6] == 0 && hdr[7] != 0 {
		d, err := br.ReadString(0)
		if err != nil {
			c.Close()
			return
		}
		domain = strings.TrimSuffix(d, "\x00")
		host = domain
	}

	s.mu.Lock()
	s.userIDs = append(s.userIDs, strings.TrimSuffix(userID, "\x00"))
	if domain != "" {
		s.domains = append(s.domains, domain)
	}
	s.mu.Unlock()

	up, err := net.Dial("tcp", net.JoinHostPort(s.resolve(host), strconv.Itoa(int(port))))
	if err != nil {
		_, _ = c.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
		c.Close()
		return
	}
	_, _ = c.Write([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0})
	pipe(c, up)
}

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
