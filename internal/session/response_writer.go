package session

import (
	"bufio"
	"net"
	"net/http"
	"sync"
)

// responseWriter wraps http.ResponseWriter and runs registered hooks once,
// immediately before the first header or body write. Cookies can only be
// set while headers are still open, so the session save hook must run here
// rather than after the handler returns.
type responseWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	beforeWrite []func()
	status      int
	written     bool
	discard     bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

// onBeforeWrite registers a hook to run before the first write.
func (w *responseWriter) onBeforeWrite(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.beforeWrite = append(w.beforeWrite, fn)
}

// takeHooks claims the pending hooks exactly once.
func (w *responseWriter) takeHooks() []func() {
	hooks := w.beforeWrite
	w.beforeWrite = nil
	return hooks
}

func (w *responseWriter) WriteHeader(code int) {
	w.mu.Lock()
	if w.written {
		w.mu.Unlock()
		return
	}
	w.written = true
	w.status = code
	hooks := w.takeHooks()
	w.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if w.discarded() {
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	if !w.written {
		w.written = true
		hooks := w.takeHooks()
		w.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		if !w.discarded() {
			w.ResponseWriter.WriteHeader(w.status)
		}
	} else {
		w.mu.Unlock()
	}
	if w.discarded() {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// fail replaces the pending response with an error status. A before-write
// hook calls it when the response must not go out as the handler wrote it;
// the handler's own header and body writes are then dropped.
func (w *responseWriter) fail(code int, msg string) {
	w.mu.Lock()
	if w.discard {
		w.mu.Unlock()
		return
	}
	w.discard = true
	w.status = code
	w.mu.Unlock()

	http.Error(w.ResponseWriter, msg, code)
}

func (w *responseWriter) discarded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.discard
}

// finish runs any hooks that never fired because the handler produced no
// output. The server will then flush an implicit 200 with the headers the
// hooks added.
func (w *responseWriter) finish() {
	w.mu.Lock()
	if w.written {
		w.mu.Unlock()
		return
	}
	w.written = true
	hooks := w.takeHooks()
	w.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Status returns the response status code.
func (w *responseWriter) Status() int {
	return w.status
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap returns the underlying ResponseWriter.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
