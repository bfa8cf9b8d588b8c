package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/gateway"
	"github.com/intake/intake/internal/intake"
	"github.com/intake/intake/internal/platform/audit"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/platform/middleware"
	"github.com/intake/intake/internal/record"
)

// portal is the whole service wired on in-memory backends, mirroring the
// production router in cmd/intake-server. Tests drive it through real HTTP
// requests so the middleware chain, handlers and services are all exercised
// together.
type portal struct {
	e     *echo.Echo
	store *record.MemStore
	staff *gateway.MemDirectory
	trail *audit.MemLog
	auth  auth.Config
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	logger := zerolog.Nop()
	store := record.NewMemStore()
	staff := gateway.NewMemDirectory()
	trail := audit.NewMemLog()

	authCfg := auth.Config{
		Secret: []byte("integration-test-secret-0123456789ab"),
		Issuer: "intake-portal",
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(15 * time.Second))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	validator := intake.NewValidator()
	normalizer := intake.NewNormalizer(nil, validator, 0, logger)
	intakeSvc := intake.NewService(store, validator, normalizer, 5*time.Second, logger)
	intake.NewHandler(intakeSvc).RegisterRoutes(api)

	secured := api.Group("")
	secured.Use(auth.Middleware(authCfg, gateway.NewKeyVerifier(staff)))
	gwSvc := gateway.NewService(store, staff, trail, 5*time.Second, logger)
	gateway.NewHandler(gwSvc).RegisterRoutes(secured)

	return &portal{e: e, store: store, staff: staff, trail: trail, auth: authCfg}
}

// addStaff registers an active directory member and returns a signed token
// for them.
func (p *portal) addStaff(t *testing.T, subject, name, role string) string {
	t.Helper()

	err := p.staff.Create(context.Background(), &gateway.StaffMember{
		Subject: subject,
		Name:    name,
		Role:    role,
		Active:  true,
	})
	if err != nil {
		t.Fatalf("create staff %s: %v", subject, err)
	}

	token, err := auth.SignToken(p.auth, subject, name, role, time.Hour)
	if err != nil {
		t.Fatalf("sign token for %s: %v", subject, err)
	}
	return token
}

// do performs one request against the portal. A non-empty token goes out as
// a bearer credential; a nil body sends no payload.
func (p *portal) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	p.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

// validSubmission returns a complete intake payload the validator accepts.
// Tests mutate copies of it to produce failures.
func validSubmission() map[string]any {
	return map[string]any{
		"demographics": map[string]any{
			"name": "Ada Byrne",
			"age":  72,
			"contact": map[string]any{
				"phone": "555-0104",
				"email": "ada.byrne@example.com",
			},
		},
		"emergencyContact": map[string]any{
			"name":         "Tom Byrne",
			"phone":        "555-0105",
			"relationship": "son",
		},
		"medicalHistory": []any{
			map[string]any{"condition": "hypertension", "year": 2015},
			map[string]any{"condition": "type 2 diabetes", "year": 2019, "notes": "diet controlled"},
		},
		"lifestyleFactors": map[string]any{
			"exercise": "walks daily",
			"smoking":  "former",
		},
		"screeningResponses": map[string]any{
			"phq9": []any{1, 0, 2, 1, 0, 1, 0, 0, 0},
			"gad7": []any{0, 1, 1, 0, 2, 0, 1},
		},
	}
}

// submitRecord pushes a valid submission through the intake endpoint and
// returns the identifier it was stored under.
func submitRecord(t *testing.T, p *portal) string {
	t.Helper()

	rec := p.do(http.MethodPost, "/api/v1/intake", "", validSubmission())
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d (body %s)", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatalf("submit: expected an id in response, got %s", rec.Body.String())
	}
	return id
}
