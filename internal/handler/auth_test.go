package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/handler/dto"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

var testCookie = SessionCookie{Name: "agentdesk_session", Secure: true}

func sessionResult() *service.SessionResult {
	expires := time.Now().Add(time.Hour)
	return &service.SessionResult{
		User:    &model.User{ID: "u1", Email: "a@example.com"},
		Session: &model.Session{ID: "s1", UserID: "u1", ExpiresAt: expires},
		Token:   "signed.jwt.token",
	}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Register(t *testing.T) {
	svc := &fakeAuthService{result: sessionResult()}
	h := NewAuthHandler(svc, testCookie, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"a@example.com","password":"long-enough","name":"A"}`))
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if svc.lastInput.Email != "a@example.com" || svc.lastInput.Name != "A" {
		t.Errorf("input = %+v", svc.lastInput)
	}
	if svc.lastIP != "203.0.113.9" {
		t.Errorf("client ip = %q", svc.lastIP)
	}

	cookie := findCookie(rec, testCookie.Name)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "signed.jwt.token" || !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", cookie)
	}

	var body dto.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.User.ID != "u1" || body.Token == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_RegisterErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"email taken", `{"email":"a@example.com","password":"long-enough"}`, service.ErrEmailTaken, http.StatusConflict},
		{"weak password", `{"email":"a@example.com","password":"x"}`, &service.ValidationError{Field: "password", Message: "too short"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&fakeAuthService{err: tt.err}, testCookie, testLogger())
			rec := httptest.NewRecorder()
			h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if findCookie(rec, testCookie.Name) != nil {
				t.Error("cookie set on failure")
			}
		})
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{result: sessionResult()}, testCookie, testLogger())

	rec := httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin",
		strings.NewReader(`{"email":"a@example.com","password":"long-enough"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if c := findCookie(rec, testCookie.Name); c == nil || c.MaxAge <= 0 {
		t.Errorf("cookie = %+v", c)
	}

	h = NewAuthHandler(&fakeAuthService{err: service.ErrInvalidCredentials}, testCookie, testLogger())
	rec = httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signin",
		strings.NewReader(`{"email":"a@example.com","password":"wrong"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "INVALID_CREDENTIALS" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		wantRevoked int
	}{
		{"valid session", "valid-token", 1},
		{"stale session", "expired-token", 0},
		{"no session", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAuthService{authCtx: &model.AuthContext{SessionID: "s1", UserID: "u1"}}
			h := NewAuthHandler(svc, testCookie, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.SignOut(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if len(svc.signedOut) != tt.wantRevoked {
				t.Errorf("revoked sessions = %v", svc.signedOut)
			}
			c := findCookie(rec, testCookie.Name)
			if c == nil || c.MaxAge >= 0 || c.Value != "" {
				t.Errorf("cookie not cleared: %+v", c)
			}
		})
	}
}

func TestAuthHandler_Session(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{}, testCookie, testLogger())

	rec := httptest.NewRecorder()
	h.Session(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without session: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Session(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body dto.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != "u1" || body.Token != "" {
		t.Errorf("body = %+v", body)
	}
}
