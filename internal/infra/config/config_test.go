package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatsync/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Transport.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.Transport.MaxReconnectAttempts)
	}
	if cfg.Transport.ReconnectBaseDelay != time.Second || cfg.Transport.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("reconnect delays = %v/%v, want 1s/30s", cfg.Transport.ReconnectBaseDelay, cfg.Transport.ReconnectMaxDelay)
	}
	if cfg.Cache.TTL != time.Hour || cfg.Cache.MaxSessions != 10 {
		t.Errorf("cache = %v/%d, want 1h/10", cfg.Cache.TTL, cfg.Cache.MaxSessions)
	}
	if cfg.History.MaxAttempts != 3 {
		t.Errorf("History.MaxAttempts = %d, want 3", cfg.History.MaxAttempts)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.MaxSessions != 10 {
		t.Errorf("expected defaults, got MaxSessions=%d", cfg.Cache.MaxSessions)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  base_url: "https://chat.example.com/api"
  token: "plain-token"
transport:
  max_reconnect_attempts: 3
  reconnect_base_delay: 2s
cache:
  ttl: 30m
  max_sessions: 4
  store_path: ""
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "https://chat.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Transport.MaxReconnectAttempts != 3 || cfg.Transport.ReconnectBaseDelay != 2*time.Second {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Transport.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("unset field lost its default: %v", cfg.Transport.ReconnectMaxDelay)
	}
	if cfg.Cache.TTL != 30*time.Minute || cfg.Cache.MaxSessions != 4 || cfg.Cache.StorePath != "" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for world-writable config")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  max_sessions: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATSYNC_SERVER_BASE_URL", "http://10.0.0.1:9000/api")
	t.Setenv("CHATSYNC_LOGGER_LEVEL", "debug")
	t.Setenv("CHATSYNC_TRACER_ENABLED", "true")
	t.Setenv("CHATSYNC_CACHE_TTL", "10m")
	t.Setenv("CHATSYNC_TRANSPORT_MAX_RECONNECT_ATTEMPTS", "2")
	t.Setenv("CHATSYNC_HISTORY_FETCH_TIMEOUT", "bogus")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Server.BaseURL != "http://10.0.0.1:9000/api" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Transport.MaxReconnectAttempts != 2 {
		t.Errorf("MaxReconnectAttempts = %d", cfg.Transport.MaxReconnectAttempts)
	}
	if cfg.History.FetchTimeout != 15*time.Second {
		t.Errorf("invalid duration should be ignored, got %v", cfg.History.FetchTimeout)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		server ServerConfig
		want   string
	}{
		{ServerConfig{BaseURL: "http://localhost:8000/api"}, "ws://localhost:8000"},
		{ServerConfig{BaseURL: "https://chat.example.com/api/v1?x=1"}, "wss://chat.example.com"},
		{ServerConfig{BaseURL: "http://a", WSURL: "wss://ws.example.com/"}, "wss://ws.example.com"},
	}
	for _, tt := range tests {
		got, err := tt.server.WebSocketURL()
		if err != nil {
			t.Fatalf("WebSocketURL(%+v): %v", tt.server, err)
		}
		if got != tt.want {
			t.Errorf("WebSocketURL(%+v) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "tok-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptValue(encrypted, "wrong-pass")
	if !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("err = %v, want ErrDecryption", err)
	}
}

func TestDecryptValueInvalidFormat(t *testing.T) {
	for _, in := range []string{"no-colon", "zz:00", "00:zz", "00:00"} {
		if _, err := DecryptValue(in, "pass"); err == nil {
			t.Errorf("DecryptValue(%q) expected error", in)
		}
	}
}

func TestLoadDecryptsServerToken(t *testing.T) {
	enc, err := EncryptValue("real-token", "k3y")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  token: \"enc:"+enc+"\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_CONFIG_KEY", "k3y")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Token != "real-token" {
		t.Errorf("Token = %q, want decrypted value", cfg.Server.Token)
	}
}
