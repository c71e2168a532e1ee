// Package session implements the client-held session store.
//
// The whole per-browser state (both providers' token triples, resolved
// account IDs, in-flight CSRF nonces, and the post-auth resume URL) lives
// in a single AES-GCM encrypted cookie. There is no server-side storage:
// the server stays stateless and any instance can serve any request.
//
// Session is a typed value object, not a key/value bag. Mutations go
// through its mutator methods, which track a dirty flag; the Middleware
// re-issues the cookie exactly once per response, right before the first
// byte, so session writes survive error responses too.
//
// Cookie writes are last-write-wins with no merge. Two concurrent requests
// mutating the same session can lose one side's write when the browser
// stores the second Set-Cookie over the first. Flows are arranged so that
// only one in-flight request writes a given nonce or token field at a
// time; the auth gate's bounded redirect counter is the backstop when
// that assumption breaks.
package session
