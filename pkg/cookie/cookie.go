package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
)

// Browsers reject cookies above 4KB; sealing adds nonce and tag overhead,
// so the payload limit is checked against the encoded value.
const maxCookieSize = 4096

// Errors.
var (
	ErrNotFound    = errors.New("cookie: not found")
	ErrShortSecret = errors.New("cookie: secret must be at least 32 bytes")
	ErrDecrypt     = errors.New("cookie: decryption failed")
	ErrTooLarge    = errors.New("cookie: sealed value exceeds 4KB cookie limit")
)

// Manager seals and opens encrypted cookie payloads.
// Values are encrypted and authenticated with AES-GCM under a key derived
// from the configured secret, then base64-encoded for transport.
type Manager struct {
	aead     cipher.AEAD
	domain   string
	path     string
	secure   bool
	sameSite http.SameSite
}

// Option configures the Manager.
type Option func(*Manager)

// WithDomain sets the cookie domain.
func WithDomain(domain string) Option {
	return func(m *Manager) {
		m.domain = domain
	}
}

// WithPath sets the cookie path.
func WithPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.path = path
		}
	}
}

// WithSecure sets the Secure flag.
func WithSecure(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(ss http.SameSite) Option {
	return func(m *Manager) {
		m.sameSite = ss
	}
}

// New creates a cookie Manager. The secret is required and must be at least
// 32 bytes; there is no unencrypted mode.
func New(secret string, opts ...Option) (*Manager, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		aead:     aead,
		path:     "/",
		sameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Set seals the payload and writes it as an HTTP-only cookie.
// Returns ErrTooLarge if the sealed value does not fit in a cookie.
func (m *Manager) Set(w http.ResponseWriter, name string, payload []byte, maxAge int) error {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	sealed := m.aead.Seal(nonce, nonce, payload, []byte(name))
	encoded := base64.RawURLEncoding.EncodeToString(sealed)
	if len(name)+len(encoded) > maxCookieSize {
		return ErrTooLarge
	}

	http.SetCookie(w, m.cookie(name, encoded, maxAge))
	return nil
}

// Get reads and opens a sealed cookie value.
// Returns ErrNotFound if the cookie is absent and ErrDecrypt if the value
// is malformed, tampered with, or encrypted under a different secret.
func (m *Manager) Get(r *http.Request, name string) ([]byte, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return nil, ErrNotFound
	}

	sealed, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(sealed) < m.aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, ciphertext := sealed[:m.aead.NonceSize()], sealed[m.aead.NonceSize():]
	payload, err := m.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, ErrDecrypt
	}
	return payload, nil
}

// Delete writes an expired cookie that instructs the browser to drop it.
func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, m.cookie(name, "", -1))
}

// cookie creates a cookie with the manager's defaults. All cookies issued
// by the manager are HTTP-only.
func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: m.sameSite,
	}
}
