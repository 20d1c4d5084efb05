package protect

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config contains the NVR credentials and the retry parameters
type Config struct {
	Address  string // base URL, e.g. https://192.168.1.1
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Timeout bounds a single HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// Logins past BackoffThreshold wait BackoffDelay before contacting the NVR.
	BackoffThreshold int
	BackoffDelay     time.Duration

	// MaxAttempts caps the attempts of a ChimeService operation.
	// Zero or less retries until the context is done.
	MaxAttempts int

	// OnBackoff, if set, is called before every backoff sleep.
	OnBackoff func(loginAttempt int, delay time.Duration)
}

const (
	DefaultTimeout          = 10 * time.Second
	DefaultBackoffThreshold = 1
	DefaultBackoffDelay     = 1000 * time.Millisecond
	DefaultMaxAttempts      = 10
)

// DefaultConfig returns a Config for address with the default retry parameters.
func DefaultConfig(address, username, password string) Config {
	return Config{
		Address:          address,
		Username:         username,
		Password:         password,
		Timeout:          DefaultTimeout,
		BackoffThreshold: DefaultBackoffThreshold,
		BackoffDelay:     DefaultBackoffDelay,
		MaxAttempts:      DefaultMaxAttempts,
	}
}

// Validate checks that the configuration can reach an NVR.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("nvr address is required")
	}
	u, err := url.Parse(c.Address)
	if err != nil {
		return fmt.Errorf("invalid nvr address %q: %w", c.Address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid nvr address %q: scheme must be http or https", c.Address)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid nvr address %q: missing host", c.Address)
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.BackoffDelay < 0 || c.Timeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
