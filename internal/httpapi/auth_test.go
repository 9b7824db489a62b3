package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store/memory"
)

func TestLogin_TokenRoundTrip(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	repo := memory.New()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "former",
		Password:  "secret123",
		Role:      "admin",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "former", Password: "secret123"}); err == nil {
		t.Fatal("expected error for inactive account")
	}
}

func TestBootstrapUsers_UpgradesPlainPasswords(t *testing.T) {
	repo := memory.New()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plain-password",
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-password"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == "legacy" && !strings.HasPrefix(user.Password, "$2") {
			t.Fatalf("expected bcrypt hash in store, got %q", user.Password)
		}
	}
}

func TestParseToken_RejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, nil)
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestParseToken_RejectsForeignSecret(t *testing.T) {
	repo := memory.New()
	issuer := NewAuthManager("first-secret-key-first-secret-key", time.Hour, repo)
	verifier := NewAuthManager("other-secret-key-other-secret-key", time.Hour, repo)

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected error for token signed with a different secret")
	}
}
