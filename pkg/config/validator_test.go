package config

import (
	"testing"
)

func hasField(t *testing.T, err error, field string) bool {
	t.Helper()
	validationErrors, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	for _, validationErr := range validationErrors {
		if validationErr.Field == field {
			return true
		}
	}
	return false
}

func TestValidateConfigRequiresToken(t *testing.T) {
	cfg := DefaultConfig()

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error for missing token")
	}
	if !hasField(t, err, "bot.token") {
		t.Fatalf("expected bot.token error, got %v", err)
	}

	if err := NewValidator(false).Validate(cfg); err != nil {
		t.Fatalf("expected config to validate without token requirement, got %v", err)
	}
}

func TestValidateConfigRejectsDevModeWithoutGuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.Token = "x"
	cfg.Bot.DevMode = true

	err := ValidateConfig(cfg)
	if err == nil || !hasField(t, err, "bot.dev_guild_id") {
		t.Fatalf("expected dev guild error, got %v", err)
	}
}

func TestValidateConfigRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.Token = "x"
	cfg.State.Backend = "mongo"

	err := ValidateConfig(cfg)
	if err == nil || !hasField(t, err, "state.backend") {
		t.Fatalf("expected state.backend error, got %v", err)
	}
}

func TestValidateConfigChecksSweepSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.Token = "x"
	cfg.Cooldown.SweepSchedule = "every minute please"

	err := ValidateConfig(cfg)
	if err == nil || !hasField(t, err, "cooldown.sweep_schedule") {
		t.Fatalf("expected sweep schedule error, got %v", err)
	}
}

func TestValidateConfigDashboardSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.Token = "x"
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.JWTSecret = "short"

	err := ValidateConfig(cfg)
	if err == nil || !hasField(t, err, "dashboard.jwt_secret") {
		t.Fatalf("expected jwt secret error, got %v", err)
	}

	cfg.Dashboard.JWTSecret = GenerateJWTSecret()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestAuthenticateAdmin(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AuthenticateAdmin("admin", "") {
		t.Fatal("expected login to fail without a configured hash")
	}

	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg.Dashboard.AdminPasswordHash = hash

	if !cfg.AuthenticateAdmin("Admin", "hunter2") {
		t.Fatal("expected login to succeed")
	}
	if cfg.AuthenticateAdmin("admin", "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if cfg.AuthenticateAdmin("root", "hunter2") {
		t.Fatal("expected wrong username to fail")
	}
}

func TestCommandScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bot.DevGuildID = "42"
	if got := cfg.CommandScope(); got != "" {
		t.Fatalf("expected global scope outside dev mode, got %q", got)
	}
	cfg.Bot.DevMode = true
	if got := cfg.CommandScope(); got != "42" {
		t.Fatalf("expected dev guild scope, got %q", got)
	}
}
