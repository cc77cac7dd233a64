package main

import (
	"testing"

	"guildkeeper/pkg/config"
)

func TestDeployTarget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bot.DevGuildID = "dev-guild"

	tests := []struct {
		name   string
		devMod bool
		guild  string
		global bool
		want   string
	}{
		{name: "production scope", want: ""},
		{name: "dev mode uses dev guild", devMod: true, want: "dev-guild"},
		{name: "explicit guild wins", devMod: true, guild: " 42 ", want: "42"},
		{name: "global overrides dev mode", devMod: true, global: true, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.Bot.DevMode = tt.devMod
			got, err := deployTarget(cfg, tt.guild, tt.global)
			if err != nil {
				t.Fatalf("deployTarget: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := deployTarget(cfg, "42", true); err == nil {
		t.Fatal("expected an error for --guild with --global")
	}
}

func TestScopeName(t *testing.T) {
	if scopeName("") != "global" || scopeName("42") != "guild:42" {
		t.Fatal("unexpected scope names")
	}
}

func TestApplyAdminCredential(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dashboard.JWTSecret = "old"

	if err := applyAdminCredential(cfg, "", "hunter2"); err != nil {
		t.Fatalf("applyAdminCredential: %v", err)
	}
	if cfg.Dashboard.JWTSecret == "old" || cfg.Dashboard.JWTSecret == "" {
		t.Fatal("jwt secret should be rotated")
	}
	if !cfg.AuthenticateAdmin("admin", "hunter2") {
		t.Fatal("new password should authenticate")
	}

	if err := applyAdminCredential(cfg, "keeper", "swordfish"); err != nil {
		t.Fatalf("applyAdminCredential: %v", err)
	}
	if cfg.AuthenticateAdmin("admin", "swordfish") || !cfg.AuthenticateAdmin("keeper", "swordfish") {
		t.Fatal("username should change")
	}
}
