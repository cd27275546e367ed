package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// failingRegistry は全操作でエラーを返す Registry です。
type failingRegistry struct {
	err error
}

func (r failingRegistry) Save(context.Context, string, Record, time.Duration) error { return r.err }
func (r failingRegistry) Get(context.Context, string) (*Record, error)             { return nil, r.err }
func (r failingRegistry) Touch(context.Context, string, time.Time) error           { return r.err }
func (r failingRegistry) Delete(context.Context, string) error                     { return r.err }

func newSessionRouter(registry Registry) (*gin.Engine, *SessionManager) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := SessionOptions{CookieName: "user_id", MaxAge: time.Hour, IdleTimeout: 10 * time.Minute}
	sm := NewSessionManager(registry, opts, logger)

	router := gin.New()
	router.Use(sm.Middleware(NewCookieStore([]byte(testSecret), nil, opts)))
	return router, sm
}

func TestIssueFailsWhenRegistryUnavailable(t *testing.T) {
	router, sm := newSessionRouter(failingRegistry{err: errors.New("redis down")})

	var issueErr error
	router.GET("/issue", func(c *gin.Context) {
		issueErr = sm.Issue(c, 1)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/issue", nil))

	if issueErr == nil {
		t.Fatal("expected Issue to fail")
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "user_id" {
			t.Fatal("session cookie must not be set when the registry write fails")
		}
	}
}

func TestResolveFailsClosedOnRegistryError(t *testing.T) {
	registry := NewMemoryRegistry()
	router, sm := newSessionRouter(registry)

	router.GET("/issue", func(c *gin.Context) {
		if err := sm.Issue(c, 7); err != nil {
			t.Errorf("Issue returned error: %v", err)
		}
		c.Status(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/issue", nil))

	var sessionCookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "user_id" {
			sessionCookie = ck
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected session cookie")
	}
	if !sessionCookie.HttpOnly || sessionCookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie attributes: %+v", sessionCookie)
	}

	resolve := func(r *gin.Engine, s *SessionManager) (int64, bool) {
		var (
			id int64
			ok bool
		)
		r.GET("/resolve", func(c *gin.Context) {
			id, ok = s.Resolve(c)
			c.Status(http.StatusNoContent)
		})
		req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie.Name, Value: sessionCookie.Value})
		r.ServeHTTP(httptest.NewRecorder(), req)
		return id, ok
	}

	if id, ok := resolve(router, sm); !ok || id != 7 {
		t.Fatalf("Resolve = %d, %v; want 7, true", id, ok)
	}

	brokenRouter, brokenSM := newSessionRouter(failingRegistry{err: errors.New("redis down")})
	if _, ok := resolve(brokenRouter, brokenSM); ok {
		t.Fatal("Resolve must fail closed when the registry errors")
	}
}

func TestResolveWithoutCookie(t *testing.T) {
	router, sm := newSessionRouter(NewMemoryRegistry())

	var ok bool
	router.GET("/resolve", func(c *gin.Context) {
		_, ok = sm.Resolve(c)
		c.Status(http.StatusNoContent)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/resolve", nil))
	if ok {
		t.Fatal("expected anonymous request")
	}
}

func TestCurrentUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if _, ok := CurrentUserID(c); ok {
		t.Fatal("expected no user before RequireLogin")
	}

	c.Set(ContextUserKey, "42")
	if _, ok := CurrentUserID(c); ok {
		t.Fatal("non-int64 value must not be accepted")
	}

	c.Set(ContextUserKey, int64(42))
	if id, ok := CurrentUserID(c); !ok || id != 42 {
		t.Fatalf("CurrentUserID = %d, %v; want 42, true", id, ok)
	}
}

func TestRequireLoginAbortsAnonymous(t *testing.T) {
	router, sm := newSessionRouter(NewMemoryRegistry())
	m := NewManager(nil, NewVerifier(0), sm, Options{Logger: sm.logger})

	router.GET("/private", m.RequireLogin(), func(c *gin.Context) {
		t.Error("handler must not run for anonymous requests")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
