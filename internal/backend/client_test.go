package backend

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

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/pharmacy"
)

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]pharmacy.JobCard{{JobcardID: 1, Status: pharmacy.StatusPending}})
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	cards, err := client.ListJobCards(context.Background(), Token("abc"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Len(t, cards, 1)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	var hadHeader bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadHeader = r.Header["Authorization"]
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	_, err := client.ListJobCards(context.Background(), Anonymous)
	require.Error(t, err)
	assert.False(t, hadHeader)
	assert.True(t, IsUnauthorized(err))
}

func TestClient_ErrorMessages(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "server supplied message",
			status:      http.StatusBadRequest,
			body:        `{"message":"Dilution not found"}`,
			wantMessage: "Dilution not found",
		},
		{
			name:        "non json body falls back to status",
			status:      http.StatusInternalServerError,
			body:        `<html>oops</html>`,
			wantMessage: "failed to add job card: 500 Internal Server Error",
		},
		{
			name:        "json without message falls back to status",
			status:      http.StatusForbidden,
			body:        `{"error":"nope"}`,
			wantMessage: "failed to add job card: 403 Forbidden",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := New(server.URL, time.Second)
			_, err := client.CreateJobCard(context.Background(), Token("t"), pharmacy.NewJobCard{DilutionID: 1})

			var apiErr *apperr.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.wantMessage, apiErr.Message)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(url, time.Second)
	_, err := client.ExecuteJobCard(context.Background(), Token("t"), 7)

	var netErr *apperr.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "execute job card failed: network error", err.Error())
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
}

func TestClient_ExecutePath(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.Write([]byte(`{"message":"Job card 9 sent to robot"}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", time.Second)
	res, err := client.ExecuteJobCard(context.Background(), Token("t"), 9)
	require.NoError(t, err)
	assert.Equal(t, "/jobcards/9/execute", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Job card 9 sent to robot", res.Message)
}

func TestResource_Update(t *testing.T) {
	var got pharmacy.Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hardware/3", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"hardwareId":3,"name":"Mixer"}`))
	}))
	defer server.Close()

	client := New(server.URL, time.Second)
	out, err := client.Resources()[ResourceHardware].Update(context.Background(), Token("t"), 3, pharmacy.Record{"name": "Mixer"})
	require.NoError(t, err)
	assert.Equal(t, "Mixer", got["name"])
	assert.Equal(t, "Mixer", out["name"])
}
