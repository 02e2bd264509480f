package socks5

import (
	"net/url"
)

// Auth holds optional username/password credentials. The zero value means
// no authentication.
type Auth struct {
	Username string
	Password string
}

// AuthFromURL returns the credentials embedded in u, if any.
func AuthFromURL(u *url.URL) Auth {
	if u == nil || u.User == nil {
		return Auth{}
	}
	pass, _ := u.User.Password()
	return Auth{Username: u.User.Username(), Password: pass}
}

func (a Auth) empty() bool {
	return a.Username == "" && a.Password == ""
}
