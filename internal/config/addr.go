package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ParseListenAddr validates a listen address. A bare port means every local
// interface.
func ParseListenAddr(s string) (string, error) {
	if s == "" {
		return "", errors.New("empty address")
	}

	if _, err := strconv.Atoi(s); err == nil {
		if _, err := parsePort(s, false); err != nil {
			return "", err
		}
		return net.JoinHostPort("", s), nil
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", err
	}
	if _, err := parsePort(port, true); err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

// ParseUpstreamAddr validates a host:port upstream address.
func ParseUpstreamAddr(s string) (string, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", errors.New("missing host")
	}
	if _, err := parsePort(port, false); err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

func parsePort(s string, allowZero bool) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port %q: %w", s, err)
	}
	if p < 0 || p > 65535 || (p == 0 && !allowZero) {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}
