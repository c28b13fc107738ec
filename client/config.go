package smb2

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
)

// Credentials authenticate a session with NTLMv2.
type Credentials struct {
	User        string
	Password    string
	Domain      string
	Workstation string
}

// Config is the immutable configuration of a Client.
type Config struct {
	// Address is host or host:port; the port defaults to 445.
	Address string
	// Share is mounted lazily by the path based methods of Client.
	Share string

	// Credentials nil means anonymous.
	Credentials   *Credentials
	DisallowGuest bool

	RequireSigning bool
	MinDialect     uint16 // default SMB202
	MaxDialect     uint16 // default SMB311

	DialTimeout    time.Duration // default 10s
	RequestTimeout time.Duration // per request, default 30s

	RetryPolicy *RetryPolicy // nil = default policy
}

func (c *Config) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MinDialect == 0 {
		c.MinDialect = SMB202
	}
	if c.MaxDialect == 0 {
		c.MaxDialect = SMB311
	}
	if c.RetryPolicy == nil {
		p := defaultRetryPolicy
		c.RetryPolicy = &p
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if _, _, err := c.hostPort(); err != nil {
		return err
	}
	if c.MinDialect > c.MaxDialect {
		return fmt.Errorf("invalid dialect range %s..%s", DialectName(c.MinDialect), DialectName(c.MaxDialect))
	}
	if c.RequestTimeout < 0 || c.DialTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func (c *Config) hostPort() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Address)
	if err != nil {
		// no port
		host = c.Address
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
		return host, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port: %q", portStr)
	}
	return host, port, nil
}

func (c *Config) initiator() Initiator {
	if c.Credentials == nil {
		return &NTLMInitiator{}
	}
	return &NTLMInitiator{
		User:        c.Credentials.User,
		Password:    c.Credentials.Password,
		Domain:      c.Credentials.Domain,
		Workstation: c.Credentials.Workstation,
	}
}
