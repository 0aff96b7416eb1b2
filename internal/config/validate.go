package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate checks the structural validity of a Config. All problems are
// collected and returned as a single joined error so a misconfigured
// deployment surfaces every issue at once instead of one per restart.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := net.ResolveTCPAddr("tcp", cfg.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: invalid bind address %q", cfg.Bind))
	}

	if cfg.Database == "" {
		errs = append(errs, errors.New("config: database path is required"))
	}

	if cfg.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("config: poll.interval must be positive, got %s", cfg.Poll.Interval.Std()))
	}

	// A non-positive period would create windows that are expired on arrival.
	if cfg.Poll.WindowPeriod <= 0 {
		errs = append(errs, fmt.Errorf("config: poll.window_period must be positive, got %s", cfg.Poll.WindowPeriod.Std()))
	}

	if cfg.Poll.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: poll.fetch_timeout must be positive, got %s", cfg.Poll.FetchTimeout.Std()))
	} else if cfg.Poll.Interval > 0 && cfg.Poll.FetchTimeout.Std() >= cfg.Poll.Interval.Std() {
		errs = append(errs, fmt.Errorf("config: poll.fetch_timeout (%s) must be smaller than poll.interval (%s)",
			cfg.Poll.FetchTimeout.Std(), cfg.Poll.Interval.Std()))
	}

	if cfg.VK.Token == "" {
		errs = append(errs, errors.New("config: vk.token is required"))
	}
	if cfg.VK.Domain == "" {
		errs = append(errs, errors.New("config: vk.domain is required"))
	}

	return errors.Join(errs...)
}
