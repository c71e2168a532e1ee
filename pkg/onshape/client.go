package onshape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is Onshape's REST API origin.
const DefaultBaseURL = "https://cad.onshape.com"

// TokenSource supplies a valid access token for each call. The auth layer
// wires this to the session-backed token vault, so every call transparently
// picks up refreshed tokens.
type TokenSource func(ctx context.Context) (string, error)

// Client is a thin typed client for the handful of Onshape endpoints the
// app uses. It exposes only the fields the app reads; the full API schema
// is deliberately out of scope.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API origin. Tests point this at a local server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates an Onshape client.
func New(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		tokens:     tokens,
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Document is a CAD document summary.
type Document struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	DefaultWorkspace Workspace `json:"defaultWorkspace"`
	Thumbnail        Thumbnail `json:"thumbnail"`
}

// Workspace identifies a document workspace.
type Workspace struct {
	ID string `json:"id"`
}

// Thumbnail carries the document's thumbnail location.
type Thumbnail struct {
	Href string `json:"href"`
}

// Part is a CAD part's metadata within a document workspace.
type Part struct {
	PartID     string `json:"partId"`
	ElementID  string `json:"elementId"`
	Name       string `json:"name"`
	PartNumber string `json:"partNumber"`
	Revision   string `json:"revision"`
	State      string `json:"state"`
}

// Documents lists the documents the authenticated user owns or has open.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var out struct {
		Items []Document `json:"items"`
	}
	if err := c.get(ctx, c.baseURL+"/api/v6/documents?filter=0", &out); err != nil {
		return nil, fmt.Errorf("onshape: list documents: %w", err)
	}
	return out.Items, nil
}

// Parts lists the parts in a document workspace.
func (c *Client) Parts(ctx context.Context, documentID, workspaceID string) ([]Part, error) {
	u := fmt.Sprintf("%s/api/v6/parts/d/%s/w/%s",
		c.baseURL, url.PathEscape(documentID), url.PathEscape(workspaceID))
	var parts []Part
	if err := c.get(ctx, u, &parts); err != nil {
		return nil, fmt.Errorf("onshape: list parts: %w", err)
	}
	return parts, nil
}

// Thumbnail streams a thumbnail image. The href must point at the API
// origin the client is configured for: hrefs come back from the documents
// listing, and rejecting foreign hosts keeps the app's thumbnail proxy
// from being turned into an open fetch proxy. Callers own closing the
// returned body.
func (c *Client) Thumbnail(ctx context.Context, href string) (io.ReadCloser, string, error) {
	target, err := url.Parse(href)
	if err != nil {
		return nil, "", fmt.Errorf("onshape: invalid thumbnail href: %w", err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("onshape: invalid base URL: %w", err)
	}
	if target.Host != base.Host || target.Scheme != base.Scheme {
		return nil, "", fmt.Errorf("onshape: thumbnail href %q is not on the API origin", href)
	}

	resp, err := c.do(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("onshape: fetch thumbnail: %w", err)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do performs an authenticated request and maps non-2xx statuses to
// *APIError. The response body is returned open on success.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json;charset=UTF-8; qs=0.09, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}
	return resp, nil
}
