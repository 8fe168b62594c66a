package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultpay/subvault-backend/internal/charges"
	"github.com/vaultpay/subvault-backend/internal/migration"
	"github.com/vaultpay/subvault-backend/internal/vault"
	pkgauth "github.com/vaultpay/subvault-backend/pkg/auth"
	"github.com/vaultpay/subvault-backend/pkg/config"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	"github.com/vaultpay/subvault-backend/pkg/kv"
	"github.com/vaultpay/subvault-backend/pkg/logger"
)

type testEnv struct {
	handler http.Handler
	cfg     *config.Config
	admin   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "subvault-test",
			ExpirationMinutes: 15,
		},
		Vault: config.VaultConfig{BatchMaxSize: 100},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	store := kv.NewMemory()
	repo := vault.NewRepository(store)
	authz := pkgauth.ContextAuthorizer{}
	vaults := vault.NewService(repo, authz, nil, nil, logg)
	engine := charges.NewEngine(repo, authz, nil, nil, nil, logg, cfg.Vault.BatchMaxSize)
	migrations := migration.NewService(store, repo, authz, logg)

	handler := NewRouter(RouterParams{
		Config:    cfg,
		Logger:    logg,
		Vault:     vaults,
		Charges:   engine,
		Migration: migrations,
	})
	return &testEnv{handler: handler, cfg: cfg, admin: uuid.New()}
}

func (e *testEnv) token(t *testing.T, account uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(e.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		AccountID: account,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return envelope.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error response %q: %v", rec.Body.String(), err)
	}
	return envelope.Error.Code
}

func (e *testEnv) initVault(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/vault/init", e.token(t, e.admin, enums.ActorRoleAdmin), map[string]any{
		"token_account": uuid.NewString(),
		"min_topup":     "10",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("init: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/vault/version", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED code, got %q", code)
	}
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.initVault(t)

	subscriber := uuid.New()
	subscriberToken := env.token(t, subscriber, enums.ActorRoleSubscriber)

	rec := env.do(t, http.MethodPost, "/api/v1/subscriptions", subscriberToken, map[string]any{
		"merchant":         uuid.NewString(),
		"amount":           "50",
		"interval_seconds": 3600,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["status"] != "active" {
		t.Fatalf("expected active subscription, got %v", data["status"])
	}
	id := int(data["subscription_id"].(float64))

	rec = env.do(t, http.MethodPost, "/api/v1/subscriptions/0/deposit", subscriberToken, map[string]any{
		"amount": "100",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d body %s", rec.Code, rec.Body.String())
	}
	if balance := decodeData(t, rec)["prepaid_balance"]; balance != "100" {
		t.Fatalf("expected balance 100, got %v", balance)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/subscriptions/0/pause", subscriberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: status %d body %s", rec.Code, rec.Body.String())
	}
	if status := decodeData(t, rec)["status"]; status != "paused" {
		t.Fatalf("expected paused, got %v", status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/subscriptions/0", subscriberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := int(decodeData(t, rec)["subscription_id"].(float64)); got != id {
		t.Fatalf("expected id %d, got %d", id, got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/subscriptions/0/cancel", subscriberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/subscriptions/0/withdraw", subscriberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: status %d body %s", rec.Code, rec.Body.String())
	}
	if withdrawn := decodeData(t, rec)["withdrawn"]; withdrawn != "100" {
		t.Fatalf("expected withdrawn 100, got %v", withdrawn)
	}
}

func TestChargeBeforeIntervalOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.initVault(t)

	subscriber := uuid.New()
	subscriberToken := env.token(t, subscriber, enums.ActorRoleSubscriber)
	rec := env.do(t, http.MethodPost, "/api/v1/subscriptions", subscriberToken, map[string]any{
		"merchant":         uuid.NewString(),
		"amount":           "50",
		"interval_seconds": 3600,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}

	adminToken := env.token(t, env.admin, enums.ActorRoleAdmin)
	rec = env.do(t, http.MethodPost, "/api/v1/charges", adminToken, map[string]any{
		"subscription_id": 0,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "INTERVAL_NOT_ELAPSED" {
		t.Fatalf("expected INTERVAL_NOT_ELAPSED, got %q", code)
	}
}

func TestChargeRequiresAdminOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.initVault(t)

	stranger := env.token(t, uuid.New(), enums.ActorRoleSubscriber)
	rec := env.do(t, http.MethodPost, "/api/v1/charges", stranger, map[string]any{
		"subscription_id": 0,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestMigrateEndpointRejectsUnknownVersion(t *testing.T) {
	env := newTestEnv(t)
	env.initVault(t)

	adminToken := env.token(t, env.admin, enums.ActorRoleAdmin)
	rec := env.do(t, http.MethodPost, "/api/v1/vault/migrate", adminToken, map[string]any{
		"from_version": 0,
	})
	// The vault was just initialized at the current version; migrating is a
	// no-op and reports the stored version.
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate: status %d body %s", rec.Code, rec.Body.String())
	}
	if version := decodeData(t, rec)["schema_version"].(float64); version != 1 {
		t.Fatalf("expected schema_version 1, got %v", version)
	}
}
