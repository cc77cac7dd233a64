package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_CreatesMissingFileWithDefaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := NewLoader().Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bot.DefaultPrefix != "!" {
		t.Fatalf("expected default prefix, got %q", cfg.Bot.DefaultPrefix)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}

func TestLoad_UsesConfigPathEnvWhenPathEmpty(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "from-env.json")

	seed := DefaultConfig()
	seed.Dashboard.Port = 29999
	if err := NewLoader().Save(cfgPath, seed); err != nil {
		t.Fatalf("save config: %v", err)
	}

	t.Setenv(ConfigPathEnv, cfgPath)

	got, err := NewLoader().Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got.Dashboard.Port != 29999 {
		t.Fatalf("expected dashboard port 29999, got %d", got.Dashboard.Port)
	}
}

func TestLoad_OverlaysProcessEnvironment(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	content := `{"bot": {"client_id": "from-file", "owner_ids": ["1"]}}`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DISCORD_TOKEN", "secret-token")
	t.Setenv("DISCORD_CLIENT_ID", "from-env")
	t.Setenv("BOT_OWNER_IDS", "1, 2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bot.Token != "secret-token" {
		t.Fatalf("expected token from env, got %q", cfg.Bot.Token)
	}
	if cfg.Bot.ClientID != "from-env" {
		t.Fatalf("expected env to win over file, got %q", cfg.Bot.ClientID)
	}
	if len(cfg.Bot.OwnerIDs) != 2 || !cfg.IsOwner("2") {
		t.Fatalf("expected merged owner ids, got %v", cfg.Bot.OwnerIDs)
	}
	if cfg.Logger.Level != "debug" {
		t.Fatalf("expected log level from env, got %q", cfg.Logger.Level)
	}
}

func TestSave_DoesNotPersistSecrets(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Bot.Token = "never-on-disk"
	cfg.Dashboard.OAuth.ClientSecret = "also-secret"
	if err := NewLoader().Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("config is not json: %v", err)
	}
	for _, secret := range []string{"never-on-disk", "also-secret"} {
		if strings.Contains(string(data), secret) {
			t.Fatalf("secret %q written to disk", secret)
		}
	}
}
