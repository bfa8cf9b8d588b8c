package main

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/config"
	"github.com/intake/intake/internal/gateway"
	"github.com/intake/intake/internal/platform/audit"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/record"
)

// ---------------------------------------------------------------------------
// resolveJWTSecret tests
// ---------------------------------------------------------------------------

func TestResolveJWTSecret_FromConfig(t *testing.T) {
	want := strings.Repeat("s", 32)
	cfg := &config.Config{JWTSecret: want}

	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated {
		t.Error("expected generated=false when JWT_SECRET is set")
	}
	if string(secret) != want {
		t.Errorf("secret mismatch: got %q", secret)
	}
}

func TestResolveJWTSecret_DevModeGeneratesEphemeral(t *testing.T) {
	cfg := &config.Config{AuthDevMode: true}

	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated {
		t.Error("expected generated=true without JWT_SECRET in dev mode")
	}
	if len(secret) != 32 {
		t.Errorf("expected 32-byte secret, got %d bytes", len(secret))
	}

	// Verify randomness by generating a second secret and ensuring they differ.
	secret2, _, err := resolveJWTSecret(cfg)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if hex.EncodeToString(secret) == hex.EncodeToString(secret2) {
		t.Error("two ephemeral secrets should not be identical")
	}
}

func TestResolveJWTSecret_RequiresSecretWithoutDevMode(t *testing.T) {
	cfg := &config.Config{}
	_, _, err := resolveJWTSecret(cfg)
	if err == nil {
		t.Fatal("expected error without JWT_SECRET and without dev mode")
	}
}

// ---------------------------------------------------------------------------
// validRole tests
// ---------------------------------------------------------------------------

func TestValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{auth.RoleClinician, true},
		{auth.RoleAdmin, true},
		{"nurse", false},
		{"", false},
		{"Clinician", false},
	}

	for _, tt := range tests {
		if got := validRole(tt.role); got != tt.want {
			t.Errorf("validRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Router registration
// ---------------------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		StoreBackend:   "memory",
		StoreTimeout:   5 * time.Second,
		RequestTimeout: 15 * time.Second,
		BodyLimit:      "1M",
		RateLimitRPS:   25,
		RateLimitBurst: 50,
		CORSOrigins:    []string{"http://localhost:3000"},
		LLMTimeout:     20 * time.Second,
	}
}

func TestNewRouter_RegistersCoreRoutes(t *testing.T) {
	b := &backends{
		store: record.NewMemStore(),
		staff: gateway.NewMemDirectory(),
		trail: audit.NewMemLog(),
	}
	authCfg := auth.Config{Secret: []byte(strings.Repeat("s", 32)), Issuer: "intake-portal"}

	e := newRouter(testConfig(), authCfg, zerolog.Nop(), b)

	want := map[string]bool{
		"GET /health":                false,
		"GET /health/db":             false,
		"POST /api/v1/intake":        false,
		"GET /api/v1/records/:id":    false,
		"DELETE /api/v1/records/:id": false,
		"GET /api/v1/audit":          false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, found := range want {
		if !found {
			t.Errorf("route %s not registered", key)
		}
	}
}

func TestBuildBackends_Memory(t *testing.T) {
	cfg := testConfig()
	b, err := buildBackends(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.pool != nil {
		t.Error("expected nil pool for memory backend")
	}
	if b.store == nil || b.staff == nil || b.trail == nil {
		t.Error("expected all memory backends to be initialized")
	}
}
