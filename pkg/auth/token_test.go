package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaultpay/subvault-backend/pkg/config"
	"github.com/vaultpay/subvault-backend/pkg/enums"
	pkgerrors "github.com/vaultpay/subvault-backend/pkg/errors"
)

var testJWT = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "subvault-test",
	ExpirationMinutes: 15,
}

func TestMintAndParseRoundTrip(t *testing.T) {
	accountID := uuid.New()
	token, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{
		AccountID: accountID,
		Role:      enums.ActorRoleSubscriber,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != accountID {
		t.Fatalf("expected account %s, got %s", accountID, claims.AccountID)
	}
	if claims.Role != enums.ActorRoleSubscriber {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected a generated jti")
	}
}

func TestMintRejectsInvalidPayload(t *testing.T) {
	if _, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{
		AccountID: uuid.Nil,
		Role:      enums.ActorRoleAdmin,
	}); err == nil {
		t.Fatal("expected error for nil account id")
	}
	if _, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{
		AccountID: uuid.New(),
		Role:      enums.ActorRole("nope"),
	}); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-time.Hour), AccessTokenPayload{
		AccountID: uuid.New(),
		Role:      enums.ActorRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(testJWT, token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestContextAuthorizer(t *testing.T) {
	account := uuid.New()
	ctx := WithAccount(context.Background(), account)

	var authz ContextAuthorizer
	if err := authz.RequireAuthorized(ctx, account); err != nil {
		t.Fatalf("expected authorized, got %v", err)
	}

	err := authz.RequireAuthorized(ctx, uuid.New())
	if err == nil {
		t.Fatal("expected unauthorized for different account")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %s", pkgerrors.CodeOf(err))
	}
}

func TestStaticAuthorizer(t *testing.T) {
	admin := uuid.New()
	authz := NewStaticAuthorizer(admin)

	if err := authz.RequireAuthorized(context.Background(), admin); err != nil {
		t.Fatalf("expected authorized, got %v", err)
	}
	if err := authz.RequireAuthorized(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected unauthorized for unknown account")
	}
}
