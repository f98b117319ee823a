package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateTransport(cfg, ve)
	validateHistory(cfg, ve)
	validateCache(cfg, ve)
	validateClient(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	u, err := url.Parse(cfg.Server.BaseURL)
	if err != nil || u.Host == "" {
		ve.Add("server.base_url must be an absolute URL, got %q", cfg.Server.BaseURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		ve.Add("server.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.Server.WSURL != "" {
		w, err := url.Parse(cfg.Server.WSURL)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
			ve.Add("server.ws_url must use ws or wss, got %q", cfg.Server.WSURL)
		}
	}
}

func validateTransport(cfg *Config, ve *ValidationError) {
	t := cfg.Transport
	if t.ReconnectBaseDelay <= 0 {
		ve.Add("transport.reconnect_base_delay must be > 0")
	}
	if t.ReconnectMaxDelay < t.ReconnectBaseDelay {
		ve.Add("transport.reconnect_max_delay must be >= reconnect_base_delay")
	}
	if t.MaxReconnectAttempts <= 0 {
		ve.Add("transport.max_reconnect_attempts must be > 0")
	}
	if t.DialTimeout <= 0 {
		ve.Add("transport.dial_timeout must be > 0")
	}
	if t.WriteTimeout <= 0 {
		ve.Add("transport.write_timeout must be > 0")
	}
	if t.SendBuffer <= 0 {
		ve.Add("transport.send_buffer must be > 0")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	h := cfg.History
	if h.FetchTimeout <= 0 {
		ve.Add("history.fetch_timeout must be > 0")
	}
	if h.SessionTimeout <= 0 {
		ve.Add("history.session_timeout must be > 0")
	}
	if h.MaxAttempts <= 0 {
		ve.Add("history.max_attempts must be > 0")
	}
	if h.RetryDelay < 0 {
		ve.Add("history.retry_delay must be >= 0")
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	c := cfg.Cache
	if c.TTL <= 0 {
		ve.Add("cache.ttl must be > 0")
	}
	if c.MaxSessions <= 0 {
		ve.Add("cache.max_sessions must be > 0")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, sched := range map[string]string{
		"cache.prune_schedule": c.PruneSchedule,
		"cache.flush_schedule": c.FlushSchedule,
	} {
		if sched == "" {
			continue
		}
		if _, err := parser.Parse(sched); err != nil {
			ve.Add("%s is not a valid schedule: %q", name, sched)
		}
	}
}

func validateClient(cfg *Config, ve *ValidationError) {
	if cfg.Client.SendRatePerSec < 0 {
		ve.Add("client.send_rate_per_sec must be >= 0 (0 disables the limit)")
	}
	if cfg.Client.SendRatePerSec > 0 && cfg.Client.SendBurst <= 0 {
		ve.Add("client.send_burst must be > 0 when send_rate_per_sec is set")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level must be debug, info, warn or error, got %q", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	t := cfg.Tracer
	switch t.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter must be noop or stdout, got %q", t.Exporter)
	}
	if t.SampleRatio <= 0 || t.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be in (0, 1]")
	}
}
