package faceid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_VerificationFlow(t *testing.T) {
	var started bool
	mux := http.NewServeMux()
	mux.HandleFunc("/start_verification", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		started = true
	})
	mux.HandleFunc("/check_verification", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(VerificationStatus{Verified: true, User: "Alice"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.URL, time.Second)
	require.NoError(t, c.StartVerification(context.Background()))
	assert.True(t, started)

	status, err := c.CheckVerification(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Verified)
	assert.Equal(t, "Alice", status.User)
}

func TestClient_StartFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	assert.Error(t, c.StartVerification(context.Background()))
}

func TestClient_RegisterFaceSendsName(t *testing.T) {
	var got nameRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snap_face", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"message":"Face registered"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second)
	res, err := c.RegisterFace(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
	assert.True(t, res.Success)
}

func TestClient_VideoFeedURL(t *testing.T) {
	c := New("http://jetson.local:5000/", time.Second)
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "http://jetson.local:5000/video_feed?t=1700000000123", c.VideoFeedURL(at))
}
