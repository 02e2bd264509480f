package testutil

import (
	"context"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/evrelay/internal/socks5"
)

// ServeSOCKS5Connect answers one SOCKS5 CONNECT on c and then copies bytes
// between c and the requested destination. An empty user disables auth.
func ServeSOCKS5Connect(ctx context.Context, c net.Conn, user, pass string) error {
	req, err := socks5.Accept(c, socks5.Auth{Username: user, Password: pass})
	if err != nil {
		return err
	}

	var d net.Dialer
	dst, err := d.DialContext(ctx, "tcp", req.Address)
	if err != nil {
		req.Reply(c, txsocks5.RepHostUnreachable)
		return nil
	}
	defer dst.Close()

	if err := req.ReplySuccess(c, dst.LocalAddr()); err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)

	return nil
}
