package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"devlink-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, StaticToken("tok-123"), nil)
	_, err := c.ChatUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_NoTokenMeansNoHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{"accessToken":"t","user":{"id":"u1","name":"A","email":"a@x.dev"}}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, StaticToken(""), nil)
	res, err := c.Login(context.Background(), models.LoginRequest{Email: "a@x.dev", Password: "secret"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "t", res.AccessToken)
}

func TestClient_UnwrapsDataEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/messages", r.URL.Path)
		assert.Equal(t, "peer-1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"data":[{"id":"m1","senderId":"a","receiverId":"b","text":"hi","createdAt":"2025-03-01T10:00:00.000Z","read":true}]}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, StaticToken("tok"), nil)
	msgs, err := c.MessageHistory(context.Background(), "peer-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].Read)
}

func TestClient_DecodesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, StaticToken(""), nil)
	_, err := c.Login(context.Background(), models.LoginRequest{Email: "a@x.dev", Password: "wrong"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestClient_ErrorWithoutBodyFallsBackToStatusText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, StaticToken(""), nil)
	err := c.MarkRead(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Internal Server Error", apiErr.Message)
}
