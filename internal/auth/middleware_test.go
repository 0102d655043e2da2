package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/test", nil)
	return c, w
}

func TestRequireAdmin_CorrectSecret(t *testing.T) {
	c, w := newContext(t)
	c.Request.Header.Set(HeaderAdminSecret, "supersecret123")

	RequireAdmin("supersecret123")(c)

	if c.IsAborted() {
		t.Fatalf("request with correct secret should pass, got status %d", w.Code)
	}
}

func TestRequireAdmin_WrongSecret(t *testing.T) {
	c, w := newContext(t)
	c.Request.Header.Set(HeaderAdminSecret, "wrong")

	RequireAdmin("supersecret123")(c)

	if !c.IsAborted() {
		t.Fatal("request with wrong secret should be rejected")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireAdmin_MissingHeader(t *testing.T) {
	c, w := newContext(t)

	RequireAdmin("supersecret123")(c)

	if !c.IsAborted() {
		t.Fatal("request without secret should be rejected")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireAdmin_NoSecretConfigured(t *testing.T) {
	c, _ := newContext(t)

	RequireAdmin("")(c)

	if c.IsAborted() {
		t.Fatal("empty configured secret should disable the check")
	}
}
