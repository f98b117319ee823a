package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Defaults()
	cfg.Server.BaseURL = "localhost:8000"
	cfg.Server.WSURL = "http://nope"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "server.base_url")
	assertContains(t, err.Error(), "server.ws_url must use ws or wss")
}

func TestValidateTransport(t *testing.T) {
	cfg := Defaults()
	cfg.Transport.ReconnectBaseDelay = 10 * time.Second
	cfg.Transport.ReconnectMaxDelay = time.Second
	cfg.Transport.MaxReconnectAttempts = 0
	cfg.Transport.SendBuffer = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "transport.reconnect_max_delay must be >= reconnect_base_delay")
	assertContains(t, err.Error(), "transport.max_reconnect_attempts must be > 0")
	assertContains(t, err.Error(), "transport.send_buffer must be > 0")
}

func TestValidateHistory(t *testing.T) {
	cfg := Defaults()
	cfg.History.MaxAttempts = 0
	cfg.History.FetchTimeout = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "history.max_attempts must be > 0")
	assertContains(t, err.Error(), "history.fetch_timeout must be > 0")
}

func TestValidateCacheSchedules(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.PruneSchedule = "every now and then"
	cfg.Cache.FlushSchedule = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "cache.prune_schedule is not a valid schedule")
	if strings.Contains(err.Error(), "cache.flush_schedule") {
		t.Error("empty flush schedule should be allowed")
	}
}

func TestValidateClientBurst(t *testing.T) {
	cfg := Defaults()
	cfg.Client.SendRatePerSec = 1
	cfg.Client.SendBurst = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "client.send_burst must be > 0")

	cfg.Client.SendRatePerSec = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("rate 0 disables the limiter and should validate: %v", err)
	}
}

func TestValidateLogger(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "verbose"
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "logger.level")
	assertContains(t, err.Error(), "logger.format")
}

func TestValidateTracer(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Exporter = "jaeger"
	cfg.Tracer.SampleRatio = 1.5
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `tracer.exporter must be noop or stdout, got "jaeger"`)
	assertContains(t, err.Error(), "tracer.sample_ratio must be in (0, 1]")
}
