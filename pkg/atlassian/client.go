package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is Atlassian's cloud API gateway. Jira resources live
// under /ex/jira/{cloudID}, where the cloud ID is resolved once after
// OAuth and carried in the session.
const DefaultBaseURL = "https://api.atlassian.com"

// TokenSource supplies a valid access token for each call.
type TokenSource func(ctx context.Context) (string, error)

// Client is a thin typed client for the Jira card operations the app
// uses: listing, creating, and updating task cards in one project.
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

// New creates an Atlassian client.
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

// Card is a task card (a Jira issue, reduced to the fields the app reads).
type Card struct {
	ID      string
	Key     string
	Summary string
	Labels  []string
}

// NewCard describes a card to create.
type NewCard struct {
	ProjectKey  string
	Summary     string
	Description string
	Labels      []string
}

// CardUpdate describes field changes for an existing card. Nil fields are
// left untouched.
type CardUpdate struct {
	Summary *string
	Labels  []string
}

// Cards lists the cards in a project, optionally narrowed to one label.
// A single page of up to 100 cards is fetched; the sync profile's label
// keeps result sets small, and generic pagination is out of scope.
func (c *Client) Cards(ctx context.Context, cloudID, projectKey, label string) ([]Card, error) {
	jql := fmt.Sprintf("project = %q", projectKey)
	if label != "" {
		jql += fmt.Sprintf(" AND labels = %q", label)
	}
	jql += " ORDER BY created ASC"

	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", "summary,labels")
	q.Set("maxResults", "100")

	var out struct {
		Issues []struct {
			ID     string `json:"id"`
			Key    string `json:"key"`
			Fields struct {
				Summary string   `json:"summary"`
				Labels  []string `json:"labels"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := c.call(ctx, http.MethodGet, c.jiraURL(cloudID, "/rest/api/3/search/jql?"+q.Encode()), nil, &out); err != nil {
		return nil, fmt.Errorf("atlassian: list cards: %w", err)
	}

	cards := make([]Card, len(out.Issues))
	for i, issue := range out.Issues {
		cards[i] = Card{
			ID:      issue.ID,
			Key:     issue.Key,
			Summary: issue.Fields.Summary,
			Labels:  issue.Fields.Labels,
		}
	}
	return cards, nil
}

// CreateCard creates a task card and returns it with its assigned key.
func (c *Client) CreateCard(ctx context.Context, cloudID string, card NewCard) (Card, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": card.ProjectKey},
			"issuetype":   map[string]string{"name": "Task"},
			"summary":     card.Summary,
			"labels":      card.Labels,
			"description": adfParagraph(card.Description),
		},
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.call(ctx, http.MethodPost, c.jiraURL(cloudID, "/rest/api/3/issue"), payload, &created); err != nil {
		return Card{}, fmt.Errorf("atlassian: create card: %w", err)
	}

	return Card{
		ID:      created.ID,
		Key:     created.Key,
		Summary: card.Summary,
		Labels:  card.Labels,
	}, nil
}

// UpdateCard applies field changes to an existing card.
func (c *Client) UpdateCard(ctx context.Context, cloudID, key string, update CardUpdate) error {
	fields := map[string]any{}
	if update.Summary != nil {
		fields["summary"] = *update.Summary
	}
	if update.Labels != nil {
		fields["labels"] = update.Labels
	}
	if len(fields) == 0 {
		return nil
	}

	payload := map[string]any{"fields": fields}
	u := c.jiraURL(cloudID, "/rest/api/3/issue/"+url.PathEscape(key))
	if err := c.call(ctx, http.MethodPut, u, payload, nil); err != nil {
		return fmt.Errorf("atlassian: update card %s: %w", key, err)
	}
	return nil
}

// jiraURL builds a Jira endpoint URL under the tenant's cloud ID.
func (c *Client) jiraURL(cloudID, path string) string {
	return c.baseURL + "/ex/jira/" + url.PathEscape(cloudID) + path
}

// adfParagraph wraps plain text in the minimal Atlassian Document Format
// structure the v3 API requires for description fields. Empty text yields
// an empty document: the API rejects empty text nodes.
func adfParagraph(text string) map[string]any {
	paragraph := map[string]any{"type": "paragraph"}
	if text != "" {
		paragraph["content"] = []map[string]any{{
			"type": "text",
			"text": text,
		}}
	}
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{paragraph},
	}
}

// call performs an authenticated JSON request. A nil out skips decoding,
// for endpoints that reply 204.
func (c *Client) call(ctx context.Context, method, rawURL string, payload, out any) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
