package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubFlashes struct {
	messages []string
}

func (s *stubFlashes) ConsumeFlash(c *gin.Context) []string {
	out := s.messages
	s.messages = nil
	return out
}

func TestIndexRendersFlashOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flashes := &stubFlashes{messages: []string{"Login successful!"}}

	router := gin.New()
	router.GET("/", IndexHandler(flashes))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Login successful!") {
		t.Fatalf("flash message not rendered: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(rec.Body.String(), "Login successful!") {
		t.Fatal("flash message rendered twice")
	}
}

func TestIndexEscapesFlash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flashes := &stubFlashes{messages: []string{"<script>alert(1)</script>"}}

	router := gin.New()
	router.GET("/", IndexHandler(flashes))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(rec.Body.String(), "<script>") {
		t.Fatalf("flash message was not escaped: %s", rec.Body.String())
	}
}

func TestTransitTimes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/transit_times", TransitTimes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transit_times", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "{}" {
		t.Fatalf("unexpected body: %s", body)
	}
}
