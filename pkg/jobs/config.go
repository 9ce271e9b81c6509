package jobs

import (
	"errors"
	"flag"
	"time"
)

// Config controls job polling.
type Config struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxPollAttempts    int           `yaml:"max_poll_attempts"`
	ResultRecheckDelay time.Duration `yaml:"result_recheck_delay"`
	CancelTimeout      time.Duration `yaml:"cancel_timeout"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.PollInterval, prefix+"poll-interval", 5*time.Second, "Time to wait between two job state polls.")
	f.IntVar(&cfg.MaxPollAttempts, prefix+"max-poll-attempts", 120, "Polls of a job before giving up on it.")
	f.DurationVar(&cfg.ResultRecheckDelay, prefix+"result-recheck-delay", 500*time.Millisecond, "Delay before looking up a missing result of a successful job a second time.")
	f.DurationVar(&cfg.CancelTimeout, prefix+"cancel-timeout", 10*time.Second, "Timeout for cancelling an abandoned job.")
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if cfg.MaxPollAttempts <= 0 {
		return errors.New("max poll attempts must be positive")
	}
	return nil
}
