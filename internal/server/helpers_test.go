package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/database"
	"github.com/MarcoPoloResearchLab/roster/internal/products"
	"github.com/MarcoPoloResearchLab/roster/internal/users"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "auth_token"
)

type testServer struct {
	handler  http.Handler
	accounts *auth.AccountService
	issuer   *auth.TokenIssuer
	realtime *RealtimeDispatcher
	metrics  *Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "roster.db"), database.Options{SeedProducts: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	productService, err := products.NewService(products.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create products service: %v", err)
	}
	accounts, err := auth.NewAccountService(auth.AccountServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to create account service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	metrics := NewMetrics()
	handler, err := NewHTTPHandler(Dependencies{
		Users:          userService,
		Products:       productService,
		Accounts:       accounts,
		Tokens:         issuer,
		Sessions:       validator,
		Realtime:       realtime,
		Metrics:        metrics,
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{handler: handler, accounts: accounts, issuer: issuer, realtime: realtime, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	t.Fatalf("expected %s cookie in response", testCookieName)
	return nil
}

func userPayload(id int, email string) map[string]any {
	return map[string]any{
		"id":        id,
		"firstName": "Jane",
		"lastName":  "Doe",
		"age":       30,
		"email":     email,
		"phone":     "+1 123 456 7890",
		"birthDate": "1994-05-01",
	}
}

func containsLine(output, line string) bool {
	for _, candidate := range strings.Split(output, "\n") {
		if strings.TrimSpace(candidate) == line {
			return true
		}
	}
	return false
}
