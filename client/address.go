package smb2

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Location is a parsed SMB address.
type Location struct {
	Host     string
	Port     int
	Share    string
	Path     string // share relative, "/" separated
	User     string
	Password string
	Domain   string
}

// Addr returns host:port, suitable for Config.Address.
func (l *Location) Addr() string {
	port := l.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(l.Host, strconv.Itoa(port))
}

// Credentials returns the user info of the location, or nil when it
// carried none.
func (l *Location) Credentials() *Credentials {
	if l.User == "" {
		return nil
	}
	return &Credentials{
		User:     l.User,
		Password: l.Password,
		Domain:   l.Domain,
	}
}

func (l *Location) String() string {
	s := "//" + l.Host
	if l.Port != 0 && l.Port != defaultPort {
		s += ":" + strconv.Itoa(l.Port)
	}
	if l.Share != "" {
		s += "/" + l.Share
	}
	if l.Path != "" {
		s += "/" + l.Path
	}
	return s
}

// ParseLocation accepts "//host[:port]/share[/path]", `\\host\share\path`
// and "smb://[[domain\]user[:pass]@]host[:port]/share[/path]".
func ParseLocation(s string) (*Location, error) {
	raw := s

	if strings.HasPrefix(s, `\\`) {
		s = strings.ReplaceAll(s, `\`, "/")
	}
	if strings.HasPrefix(s, "//") {
		s = "smb:" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", raw, err)
	}

	if u.Scheme != "smb" {
		return nil, fmt.Errorf("invalid location %q: unsupported scheme %q", raw, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid location %q: missing host", raw)
	}

	l := &Location{
		Host: u.Hostname(),
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid location %q: bad port %q", raw, p)
		}
		l.Port = port
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] != "" {
		l.Share = parts[0]
	}
	if len(parts) == 2 {
		l.Path = parts[1]
	}

	if u.User != nil {
		user := u.User.Username()
		if domain, name, ok := strings.Cut(user, `\`); ok {
			l.Domain, user = domain, name
		} else if domain, name, ok := strings.Cut(user, ";"); ok {
			l.Domain, user = domain, name
		}
		l.User = user
		l.Password, _ = u.User.Password()
	}

	return l, nil
}
