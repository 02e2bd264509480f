package dialer

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/die-net/evrelay/internal/testutil"
)

func newHTTPProxyDialer(t *testing.T, proxyAddr, user, pass string) *HTTPProxyDialer {
	t.Helper()

	f, err := NewHTTPProxyDialer(Config{DialTimeout: 2 * time.Second, NegotiationTimeout: 2 * time.Second}, &url.URL{Scheme: "http", Host: proxyAddr}, user, pass)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestHTTPProxyDialerDialSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	gotAuth := make(chan string, 1)
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		if req.Method != http.MethodConnect {
			return
		}
		gotAuth <- req.Header.Get("Proxy-Authorization")
		_ = req.Body.Close()

		dst, err := net.Dial("tcp", req.Host)
		if err != nil {
			_, _ = io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
			return
		}
		defer dst.Close()

		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")

		go func() {
			_, _ = io.Copy(dst, br)
			_ = dst.Close()
		}()
		_, _ = io.Copy(c, dst)
	})

	f := newHTTPProxyDialer(t, upLn.Addr().String(), "user", "pass")

	conn, err := f.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEcho(t, conn, conn, []byte("hello"))

	if auth := <-gotAuth; auth != "Basic dXNlcjpwYXNz" {
		t.Fatalf("unexpected Proxy-Authorization %q", auth)
	}

	_ = conn.Close()
	waitUp()
}

func TestHTTPProxyDialerKeepsEarlyUpstreamBytes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		req, err := http.ReadRequest(bufio.NewReader(c))
		if err != nil {
			return
		}
		_ = req.Body.Close()
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\nBANNER")
		_, _ = io.Copy(io.Discard, c)
	})

	f := newHTTPProxyDialer(t, upLn.Addr().String(), "", "")

	conn, err := f.DialContext(ctx, "tcp", "upstream.example:25")
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, len("BANNER"))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "BANNER" {
		t.Fatalf("expected %q got %q", "BANNER", string(buf))
	}

	_ = conn.Close()
	waitUp()
}

func TestHTTPProxyDialerDialNon2xx(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		req, err := http.ReadRequest(bufio.NewReader(c))
		if err != nil {
			return
		}
		_ = req.Body.Close()

		_, _ = io.WriteString(c, "HTTP/1.1 403 Forbidden\r\n\r\n")
	})

	f := newHTTPProxyDialer(t, upLn.Addr().String(), "", "")

	_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
	if err == nil {
		t.Fatalf("expected error")
	}

	waitUp()
}
