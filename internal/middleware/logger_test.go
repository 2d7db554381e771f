package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"fish-tracker/internal/logging"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(logging.Logger().Output(&buf))
	defer logging.SetLogger(prev)

	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) {
		if logging.RequestIDFromContext(c.Request.Context()) == "" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("expected request id echoed, got %q", w.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"abc"`) || !strings.Contains(out, `"status":204`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}
