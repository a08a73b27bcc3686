package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pagebot/internal/graph"
)

func newClient(t *testing.T, handler http.HandlerFunc) *graph.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return graph.NewClient(graph.Config{BaseURL: srv.URL, APIVersion: "v19.0", Timeout: 2 * time.Second}, nil)
}

func TestReplyToComment(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/C1/comments", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "thanks!", r.PostForm.Get("message"))
		assert.Equal(t, "tok", r.PostForm.Get("access_token"))
		_, _ = w.Write([]byte(`{"id":"C1_R1"}`))
	})

	require.NoError(t, client.ReplyToComment(context.Background(), "C1", "thanks!", "tok"))
}

func TestSendPrivateReply(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/C1/private_replies", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "check your inbox", r.PostForm.Get("message"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.SendPrivateReply(context.Background(), "C1", "check your inbox", "tok"))
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/P1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			AccessToken string `json:"access_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "U1", body.Recipient.ID)
		assert.Equal(t, "hello", body.Message.Text)
		assert.Equal(t, "tok", body.AccessToken)
	})

	require.NoError(t, client.SendMessage(context.Background(), "P1", "U1", "hello", "tok"))
}

func TestNon200IsAPIError(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token."}}`))
	})

	err := client.ReplyToComment(context.Background(), "C1", "hi", "bad")
	var apiErr *graph.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid OAuth access token.", apiErr.Message())
	assert.Contains(t, apiErr.Body, "Invalid OAuth")
}

func TestTransportErrorHidesToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client := graph.NewClient(graph.Config{BaseURL: srv.URL}, nil)

	_, err := client.ListAccounts(context.Background(), "secret-user-token")
	require.Error(t, err)
	var apiErr *graph.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.NotContains(t, err.Error(), "secret-user-token")
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-block }))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})
	client := graph.NewClient(graph.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)

	err := client.SendPrivateReply(context.Background(), "C1", "hi", "tok")
	require.Error(t, err)
}

func TestListAccountsAndSubscribe(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/me/accounts":
			assert.Equal(t, "id,name,access_token", r.URL.Query().Get("fields"))
			assert.Equal(t, "user-tok", r.URL.Query().Get("access_token"))
			_, _ = w.Write([]byte(`{"data":[{"id":"P1","name":"Shop","access_token":"page-tok"}]}`))
		case "/v19.0/P1/subscribed_apps":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "feed,messages", r.PostForm.Get("subscribed_fields"))
			assert.Equal(t, "page-tok", r.PostForm.Get("access_token"))
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.NotFound(w, r)
		}
	})

	accounts, err := client.ListAccounts(context.Background(), "user-tok")
	require.NoError(t, err)
	assert.Equal(t, []graph.Account{{ID: "P1", Name: "Shop", AccessToken: "page-tok"}}, accounts)

	require.NoError(t, client.SubscribeApp(context.Background(), "P1", "page-tok"))
}
