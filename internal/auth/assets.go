package auth

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed assets/relay.html assets/connect.js
var assetsFS embed.FS

var relayTmpl = template.Must(template.ParseFS(assetsFS, "assets/relay.html"))

// relayPayload is the single message schema the popup posts to its opener.
// The source marker lets the opener ignore unrelated same-origin messages.
type relayPayload struct {
	Source   string `json:"source"`
	Provider string `json:"provider"`
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// serveRelay renders the popup relay page. The page relays code and state
// (or the provider error) to the opener via postMessage with an explicit
// target origin; it performs no token exchange itself.
func (h *Handler) serveRelay(w http.ResponseWriter, r *http.Request, provider, code, state, errParam string) {
	data := struct {
		Payload  relayPayload
		Origin   string
		Fallback string
	}{
		Payload: relayPayload{
			Source:   "partsync-auth",
			Provider: provider,
			Code:     code,
			State:    state,
			Error:    errParam,
		},
		Origin:   h.service.Origin(),
		Fallback: SignInPath,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := relayTmpl.Execute(w, data); err != nil {
		h.log.ErrorContext(r.Context(), "failed to render relay page", "error", err.Error())
	}
}

// handleConnectScript serves the opener-side popup coordination script.
func (h *Handler) handleConnectScript(w http.ResponseWriter, r *http.Request) {
	script, err := assetsFS.ReadFile("assets/connect.js")
	if err != nil {
		http.Error(w, "asset unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(script)
}
