package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/go-playground/validator/v10"
	smb2 "github.com/macos-fuse-t/smbclient/client"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	"github.com/spf13/pflag"
)

type AppConfig struct {
	Debug   bool
	Console bool
	LogFile string `validate:"required_if=Console false"`

	// Address is host[:port] of the server.
	Address string `validate:"omitempty,hostname_port|hostname_rfc1123|ip"`
	Share   string `validate:"omitempty,excludesall=/\\"`

	User     string
	Domain   string
	Password string
	// NoPass skips the password prompt and authenticates anonymously when
	// User is empty.
	NoPass bool

	RequireSigning bool
	DisallowGuest  bool
	MinDialect     string `validate:"omitempty,oneof=2.0.2 2.1 3.0 3.0.2 3.1.1"`
	MaxDialect     string `validate:"omitempty,oneof=2.0.2 2.1 3.0 3.0.2 3.1.1"`

	Timeout     time.Duration `validate:"gte=0"`
	DialTimeout time.Duration `validate:"gte=0"`
	Retries     int           `validate:"gte=1,lte=10"`

	StatsAddr string `validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// DefaultIniFiles are tried in order; the first readable one wins.
func DefaultIniFiles() []string {
	files := []string{"smbclient.ini"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, home+"/.smbclient/smbclient.ini")
	}
	return files
}

func NewConfig(iniFile []string) AppConfig {
	cfg := AppConfig{
		Debug:       false,
		Console:     true,
		LogFile:     "smbclient.log",
		Timeout:     30 * time.Second,
		DialTimeout: 10 * time.Second,
		Retries:     3,
		MinDialect:  "2.0.2",
		MaxDialect:  "3.1.1",
	}

	var f *ini.File
	var err error
	for _, file := range iniFile {
		if f, err = ini.Load(file); err == nil {
			break
		}
	}

	if err == nil && f != nil {
		s, err := f.GetSection("Default")
		if err == nil {
			cfg.load(s)
		}
	}

	return cfg
}

func (cfg *AppConfig) load(s *ini.Section) {
	boolKey := func(name string, v *bool) {
		if s.HasKey(name) {
			if b, err := s.Key(name).Bool(); err == nil {
				*v = b
			}
		}
	}
	stringKey := func(name string, v *string) {
		if s.HasKey(name) {
			*v = s.Key(name).String()
		}
	}
	durationKey := func(name string, v *time.Duration) {
		if s.HasKey(name) {
			if d, err := s.Key(name).Duration(); err == nil {
				*v = d
			}
		}
	}

	boolKey("debug", &cfg.Debug)
	boolKey("console", &cfg.Console)
	stringKey("log_file", &cfg.LogFile)

	stringKey("address", &cfg.Address)
	stringKey("share", &cfg.Share)
	stringKey("user", &cfg.User)
	stringKey("domain", &cfg.Domain)
	stringKey("password", &cfg.Password)

	boolKey("require_signing", &cfg.RequireSigning)
	boolKey("disallow_guest", &cfg.DisallowGuest)
	stringKey("min_dialect", &cfg.MinDialect)
	stringKey("max_dialect", &cfg.MaxDialect)

	durationKey("timeout", &cfg.Timeout)
	durationKey("dial_timeout", &cfg.DialTimeout)
	if s.HasKey("retries") {
		if n, err := s.Key("retries").Int(); err == nil {
			cfg.Retries = n
		}
	}

	stringKey("stats_addr", &cfg.StatsAddr)
}

// BindFlags registers the configuration on fs with the loaded values as
// defaults, so flags override the ini file.
func (cfg *AppConfig) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "debug mode")
	fs.BoolVarP(&cfg.Console, "console", "c", cfg.Console, "output logs to console")
	fs.StringVar(&cfg.LogFile, "log_file", cfg.LogFile, "log file used when console is off")

	fs.StringVarP(&cfg.Address, "address", "a", cfg.Address, "server host[:port]")
	fs.StringVarP(&cfg.Share, "share", "s", cfg.Share, "share name")
	fs.StringVarP(&cfg.User, "user", "U", cfg.User, "user name, empty for anonymous")
	fs.StringVarP(&cfg.Domain, "domain", "W", cfg.Domain, "NTLM domain")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "password, prompted if empty")
	fs.BoolVarP(&cfg.NoPass, "no-pass", "N", cfg.NoPass, "do not ask for a password")

	fs.BoolVar(&cfg.RequireSigning, "require_signing", cfg.RequireSigning, "require signed replies")
	fs.BoolVar(&cfg.DisallowGuest, "no_guest", cfg.DisallowGuest, "fail instead of accepting a guest session")
	fs.StringVar(&cfg.MinDialect, "min_dialect", cfg.MinDialect, "lowest dialect to offer")
	fs.StringVar(&cfg.MaxDialect, "max_dialect", cfg.MaxDialect, "highest dialect to offer")

	fs.DurationVarP(&cfg.Timeout, "timeout", "t", cfg.Timeout, "per request timeout")
	fs.DurationVar(&cfg.DialTimeout, "dial_timeout", cfg.DialTimeout, "connect timeout")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "attempts for a transient short read or write")

	fs.StringVar(&cfg.StatsAddr, "stats_addr", cfg.StatsAddr, "serve transfer stats and metrics on this address")
}

// Validate checks the struct tags and the dialect range.
func (cfg *AppConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	lo, _ := ParseDialect(cfg.MinDialect)
	hi, _ := ParseDialect(cfg.MaxDialect)
	if lo != 0 && hi != 0 && lo > hi {
		return fmt.Errorf("min_dialect %s is above max_dialect %s", cfg.MinDialect, cfg.MaxDialect)
	}

	return nil
}

func formatValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
	}
	return err
}

// ParseDialect maps "2.1" style names to dialect revisions. The empty
// string maps to 0, which the client replaces by its default.
func ParseDialect(s string) (uint16, error) {
	switch strings.TrimSpace(s) {
	case "":
		return 0, nil
	case "2.0.2", "2.02":
		return SMB202, nil
	case "2.1", "2.10":
		return SMB210, nil
	case "3.0", "3.00":
		return SMB300, nil
	case "3.0.2", "3.02":
		return SMB302, nil
	case "3.1.1", "3.11":
		return SMB311, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", s)
}

// ClientConfig converts the application settings into a client
// configuration. Address and share given on the command line take
// precedence over the configured ones.
func (cfg *AppConfig) ClientConfig(address, share string) (smb2.Config, error) {
	if address == "" {
		address = cfg.Address
	}
	if share == "" {
		share = cfg.Share
	}

	lo, err := ParseDialect(cfg.MinDialect)
	if err != nil {
		return smb2.Config{}, err
	}
	hi, err := ParseDialect(cfg.MaxDialect)
	if err != nil {
		return smb2.Config{}, err
	}

	c := smb2.Config{
		Address:        address,
		Share:          share,
		DisallowGuest:  cfg.DisallowGuest,
		RequireSigning: cfg.RequireSigning,
		MinDialect:     lo,
		MaxDialect:     hi,
		DialTimeout:    cfg.DialTimeout,
		RequestTimeout: cfg.Timeout,
		RetryPolicy: &smb2.RetryPolicy{
			MaxAttempts:  cfg.Retries,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}

	if cfg.User != "" {
		c.Credentials = &smb2.Credentials{
			User:     cfg.User,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		}
	}

	return c, nil
}
