// Package auth implements the dual-provider OAuth flow and token
// lifecycle: per-provider token vaults with refresh-on-demand, the
// authorization-flow initiator and callback completion, the popup/opener
// handshake endpoints, and the gate requiring both providers authenticated
// before protected pages render.
//
// Two flow shapes exist. Redirect mode navigates the main frame to the
// provider and completes the exchange server-side on the callback. Popup
// mode, used when the app runs embedded in another site's frame, opens a
// popup via a same-origin cookie-priming bridge; the callback serves a
// relay page that hands code and state back to the opener via postMessage,
// and the opener posts them to the exchange endpoint under its own cookie.
// The opener, never the popup, performs the exchange, which collapses the
// popup-vs-opener cookie race to a single writer.
package auth
