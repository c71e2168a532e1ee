package atlassian_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/partsync/pkg/atlassian"
)

func staticToken(tok string) atlassian.TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestCards(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ex/jira/cloud-1/rest/api/3/search/jql", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.Equal(t, `project = "ENG" AND labels = "cad-sync" ORDER BY created ASC`, r.URL.Query().Get("jql"))
		require.Equal(t, "100", r.URL.Query().Get("maxResults"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"issues":[
			{"id":"10001","key":"ENG-1","fields":{"summary":"[PN-100] Plate","labels":["cad-sync","pn-pn-100"]}},
			{"id":"10002","key":"ENG-2","fields":{"summary":"[PN-200] Pin","labels":["cad-sync"]}}
		]}`)
	}))
	t.Cleanup(srv.Close)

	c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
	cards, err := c.Cards(context.Background(), "cloud-1", "ENG", "cad-sync")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	require.Equal(t, "ENG-1", cards[0].Key)
	require.Equal(t, []string{"cad-sync", "pn-pn-100"}, cards[0].Labels)
}

func TestCreateCard(t *testing.T) {
	t.Parallel()

	t.Run("builds the issue payload", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/ex/jira/cloud-1/rest/api/3/issue", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"10003","key":"ENG-3"}`)
		}))
		t.Cleanup(srv.Close)

		c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
		card, err := c.CreateCard(context.Background(), "cloud-1", atlassian.NewCard{
			ProjectKey:  "ENG",
			Summary:     "[PN-300] Housing",
			Description: "Rev C",
			Labels:      []string{"cad-sync", "pn-pn-300"},
		})
		require.NoError(t, err)
		require.Equal(t, "ENG-3", card.Key)
		require.Equal(t, "[PN-300] Housing", card.Summary)

		fields := got["fields"].(map[string]any)
		require.Equal(t, map[string]any{"key": "ENG"}, fields["project"])
		require.Equal(t, map[string]any{"name": "Task"}, fields["issuetype"])
		require.Equal(t, "[PN-300] Housing", fields["summary"])

		desc := fields["description"].(map[string]any)
		require.Equal(t, "doc", desc["type"])
		paragraph := desc["content"].([]any)[0].(map[string]any)
		text := paragraph["content"].([]any)[0].(map[string]any)
		require.Equal(t, "Rev C", text["text"])
	})

	t.Run("empty description yields an empty paragraph", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"id":"10004","key":"ENG-4"}`)
		}))
		t.Cleanup(srv.Close)

		c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
		_, err := c.CreateCard(context.Background(), "cloud-1", atlassian.NewCard{
			ProjectKey: "ENG",
			Summary:    "Pin",
		})
		require.NoError(t, err)

		desc := got["fields"].(map[string]any)["description"].(map[string]any)
		paragraph := desc["content"].([]any)[0].(map[string]any)
		// The v3 API rejects empty text nodes.
		require.NotContains(t, paragraph, "content")
	})
}

func TestUpdateCard(t *testing.T) {
	t.Parallel()

	t.Run("sends only the set fields", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "/ex/jira/cloud-1/rest/api/3/issue/ENG-1", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		}))
		t.Cleanup(srv.Close)

		summary := "[PN-100] Plate rev C"
		c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
		err := c.UpdateCard(context.Background(), "cloud-1", "ENG-1", atlassian.CardUpdate{Summary: &summary})
		require.NoError(t, err)

		fields := got["fields"].(map[string]any)
		require.Equal(t, summary, fields["summary"])
		require.NotContains(t, fields, "labels")
	})

	t.Run("no fields set skips the request", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			t.Error("unexpected request")
		}))
		t.Cleanup(srv.Close)

		c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
		require.NoError(t, c.UpdateCard(context.Background(), "cloud-1", "ENG-1", atlassian.CardUpdate{}))
	})
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errorMessages":["project missing"]}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := atlassian.New(staticToken("tok-1"), atlassian.WithBaseURL(srv.URL))
	_, err := c.Cards(context.Background(), "cloud-1", "ENG", "")

	var apiErr *atlassian.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.False(t, apiErr.Retryable)
}
