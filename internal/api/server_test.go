package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwren/chitter/internal/memstore"
	"github.com/mwren/chitter/internal/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := memstore.New(testutil.TestLogger(t), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := NewServer(testutil.TestLogger(t), store, Config{Addr: ":0", ShutdownToken: "test"})
	ts := httptest.NewServer(srv.mux.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestCreateRoomAndAdmin_HTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, ts, http.MethodPost, "/api/createRoomAndAdmin", "", map[string]any{
		"roomName": "Acme", "adminName": "Alice", "adminInviteOnly": false,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])
	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "admin")
}

func TestCreateRoomAndAdmin_MissingFields(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, ts, http.MethodPost, "/api/createRoomAndAdmin", "", map[string]any{
		"roomName": "", "adminName": "",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "Invalid parameters", decoded["error"])
}

func TestInviteAndJoin_HTTP(t *testing.T) {
	ts := newTestServer(t)

	_, created := doJSON(t, ts, http.MethodPost, "/api/createRoomAndAdmin", "", map[string]any{
		"roomName": "Acme", "adminName": "Alice",
	})
	admin := created["data"].(map[string]any)["admin"].(map[string]any)
	adminToken := admin["token"].(string)

	_, inviteResp := doJSON(t, ts, http.MethodPost, "/api/createInviteCode", adminToken, nil)
	code := inviteResp["data"].(map[string]any)["inviteCode"].(string)

	resp, joinResp := doJSON(t, ts, http.MethodPost, "/api/createUserFromInviteCode", "", map[string]any{
		"inviteCode": code, "displayName": "Bob",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, joinResp["success"])
}

func TestShutdown_HTTP(t *testing.T) {
	store, err := memstore.New(testutil.TestLogger(t), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := NewServer(testutil.TestLogger(t), store, Config{Addr: ":0", ShutdownToken: "test"})
	ts := httptest.NewServer(srv.mux.Handler)
	t.Cleanup(ts.Close)

	resp, decoded := doJSON(t, ts, http.MethodPost, "/api/shutdown", "wrong-token", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidToken", decoded["error"])

	select {
	case <-srv.ShutdownRequested():
		t.Fatal("shutdown must not be requested on a bad token")
	default:
	}

	resp, decoded = doJSON(t, ts, http.MethodPost, "/api/shutdown", "test", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])

	select {
	case <-srv.ShutdownRequested():
	default:
		t.Fatal("shutdown must be requested once the correct token is presented")
	}

	// A second call with the right token must not panic on a closed channel.
	resp, decoded = doJSON(t, ts, http.MethodPost, "/api/shutdown", "test", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])
}

func TestInvalidToken_HTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, ts, http.MethodGet, "/api/getChannels", "bogus-token", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidUserToken", decoded["error"])
}

func TestCreateMessage_HTTP(t *testing.T) {
	ts := newTestServer(t)

	_, created := doJSON(t, ts, http.MethodPost, "/api/createRoomAndAdmin", "", map[string]any{
		"roomName": "Acme", "adminName": "Alice",
	})
	data := created["data"].(map[string]any)
	admin := data["admin"].(map[string]any)
	general := data["generalChannel"].(map[string]any)
	adminToken := admin["token"].(string)
	channelID := general["id"].(string)

	resp, decoded := doJSON(t, ts, http.MethodPost, "/api/createMessage", adminToken, map[string]any{
		"content":   map[string]any{"text": "hello"},
		"channelId": channelID,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])
}
