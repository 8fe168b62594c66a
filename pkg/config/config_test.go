package config

import "testing"

func TestAppConfigEnvChecks(t *testing.T) {
	dev := AppConfig{Env: "DEV"}
	if !dev.IsDev() {
		t.Fatal("expected IsDev for DEV")
	}
	if dev.IsProd() {
		t.Fatal("did not expect IsProd for DEV")
	}

	prod := AppConfig{Env: "prod"}
	if !prod.IsProd() {
		t.Fatal("expected IsProd for prod")
	}
}

func TestLoadRequiresEnv(t *testing.T) {
	t.Setenv("SUBVAULT_APP_ENV", "")
	t.Setenv("SUBVAULT_REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when required env vars are unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SUBVAULT_APP_ENV", "dev")
	t.Setenv("SUBVAULT_REDIS_URL", "redis://localhost:6379")
	t.Setenv("SUBVAULT_JWT_SECRET", "secret")
	t.Setenv("SUBVAULT_JWT_ISSUER", "subvault")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.BatchMaxSize != 100 {
		t.Fatalf("expected default batch cap 100, got %d", cfg.Vault.BatchMaxSize)
	}
	if cfg.App.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.App.Port)
	}
	if cfg.Worker.LockKey != "subvault:worker:lock" {
		t.Fatalf("unexpected lock key %s", cfg.Worker.LockKey)
	}
}
