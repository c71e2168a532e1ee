package cookie_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrymomot/partsync/pkg/cookie"
)

const testSecret = "this-is-a-32-byte-or-longer-key!"

func TestNew(t *testing.T) {
	t.Run("valid secret", func(t *testing.T) {
		m, err := cookie.New(testSecret)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		if m == nil {
			t.Fatal("New() returned nil")
		}
	})

	t.Run("short secret", func(t *testing.T) {
		_, err := cookie.New("too-short")
		if !errors.Is(err, cookie.ErrShortSecret) {
			t.Errorf("expected ErrShortSecret, got %v", err)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := cookie.New("")
		if !errors.Is(err, cookie.ErrShortSecret) {
			t.Errorf("expected ErrShortSecret, got %v", err)
		}
	})
}

func TestSetGet(t *testing.T) {
	m, err := cookie.New(testSecret)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		w := httptest.NewRecorder()
		if err := m.Set(w, "sess", []byte(`{"k":"v"}`), 3600); err != nil {
			t.Fatalf("Set() error: %v", err)
		}

		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}

		c := cookies[0]
		if c.Name != "sess" {
			t.Errorf("Name = %q, want %q", c.Name, "sess")
		}
		if c.MaxAge != 3600 {
			t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
		}
		if !c.HttpOnly {
			t.Error("cookie must be HTTP-only")
		}
		if strings.Contains(c.Value, `"k"`) {
			t.Error("cookie value is not encrypted")
		}

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(c)

		payload, err := m.Get(r, "sess")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if string(payload) != `{"k":"v"}` {
			t.Errorf("Get() = %q, want %q", payload, `{"k":"v"}`)
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := m.Get(r, "absent")
		if !errors.Is(err, cookie.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("tampered value", func(t *testing.T) {
		w := httptest.NewRecorder()
		if err := m.Set(w, "sess", []byte("payload"), 0); err != nil {
			t.Fatalf("Set() error: %v", err)
		}

		c := w.Result().Cookies()[0]
		c.Value = "x" + c.Value[1:]

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(c)

		if _, err := m.Get(r, "sess"); !errors.Is(err, cookie.ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("garbage value", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sess", Value: "not base64!!"})

		if _, err := m.Get(r, "sess"); !errors.Is(err, cookie.ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		if err := m.Set(w, "sess", []byte("payload"), 0); err != nil {
			t.Fatalf("Set() error: %v", err)
		}

		other, err := cookie.New(strings.Repeat("x", 32))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(w.Result().Cookies()[0])

		if _, err := other.Get(r, "sess"); !errors.Is(err, cookie.ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("name bound", func(t *testing.T) {
		// A value sealed for one cookie name must not open under another.
		w := httptest.NewRecorder()
		if err := m.Set(w, "sess", []byte("payload"), 0); err != nil {
			t.Fatalf("Set() error: %v", err)
		}

		c := w.Result().Cookies()[0]
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "other", Value: c.Value})

		if _, err := m.Get(r, "other"); !errors.Is(err, cookie.ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := m.Set(w, "sess", make([]byte, 8192), 0)
		if !errors.Is(err, cookie.ErrTooLarge) {
			t.Errorf("expected ErrTooLarge, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	m, err := cookie.New(testSecret)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	w := httptest.NewRecorder()
	m.Delete(w, "sess")

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", cookies[0].MaxAge)
	}
	if cookies[0].Value != "" {
		t.Errorf("Value = %q, want empty", cookies[0].Value)
	}
}

func TestOptions(t *testing.T) {
	m, err := cookie.New(testSecret,
		cookie.WithDomain("example.com"),
		cookie.WithPath("/app"),
		cookie.WithSecure(true),
		cookie.WithSameSite(http.SameSiteStrictMode),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	w := httptest.NewRecorder()
	if err := m.Set(w, "sess", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	c := w.Result().Cookies()[0]
	if c.Domain != "example.com" {
		t.Errorf("Domain = %q, want example.com", c.Domain)
	}
	if c.Path != "/app" {
		t.Errorf("Path = %q, want /app", c.Path)
	}
	if !c.Secure {
		t.Error("Secure flag not set")
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Errorf("SameSite = %v, want Strict", c.SameSite)
	}
}
