package socks5

import (
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// Request is a client's CONNECT request.
type Request struct {
	// Address is the requested destination as host:port.
	Address string
	atyp    byte
}

// Accept runs the server side of the handshake on conn up to and including
// reading a CONNECT request. The caller answers with Reply or ReplySuccess.
// Commands other than CONNECT are answered and returned as an error.
func Accept(conn net.Conn, auth Auth) (*Request, error) {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("socks5: read methods: %w", err)
	}

	want := byte(txsocks5.MethodNone)
	if !auth.empty() {
		want = txsocks5.MethodUsernamePassword
	}
	if !slices.Contains(neg.Methods, want) {
		_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
		return nil, fmt.Errorf("%w: client does not offer method 0x%02x", ErrAuthFailed, want)
	}
	if _, err := txsocks5.NewNegotiationReply(want).WriteTo(conn); err != nil {
		return nil, fmt.Errorf("socks5: write method: %w", err)
	}

	if !auth.empty() {
		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
		if err != nil {
			return nil, fmt.Errorf("socks5: read credentials: %w", err)
		}
		if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
			_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
			return nil, ErrAuthFailed
		}
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
			return nil, fmt.Errorf("socks5: write auth status: %w", err)
		}
	}

	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("socks5: read request: %w", err)
	}
	r := &Request{Address: req.Address(), atyp: req.Atyp}
	if req.Cmd != txsocks5.CmdConnect {
		r.Reply(conn, txsocks5.RepCommandNotSupported)
		return nil, fmt.Errorf("socks5: unsupported command 0x%02x", req.Cmd)
	}
	return r, nil
}

// Reply answers the request with a failure code and a zero bound address.
func (r *Request) Reply(conn net.Conn, code byte) {
	if r.atyp == txsocks5.ATYPIPv6 {
		_, _ = txsocks5.NewReply(code, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0, 0}).WriteTo(conn)
		return
	}
	_, _ = txsocks5.NewReply(code, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(conn)
}

// ReplySuccess answers the request with bound as the bound address.
func (r *Request) ReplySuccess(conn net.Conn, bound net.Addr) error {
	atyp, host, port, err := txsocks5.ParseAddress(bound.String())
	if err != nil {
		return fmt.Errorf("socks5: bound address %q: %w", bound, err)
	}
	if atyp == txsocks5.ATYPDomain {
		host = host[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, atyp, host, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: write reply: %w", err)
	}
	return nil
}
