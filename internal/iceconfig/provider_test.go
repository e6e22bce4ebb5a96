package iceconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uris":["turn:turn.example.com:3478?transport=udp"],"username":"1:p:alice","password":"secret"}`))
	}))
	defer srv.Close()

	servers, err := NewProvider(srv.URL + "/turn?username=alice").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []webrtc.ICEServer{{
		URLs:       []string{"turn:turn.example.com:3478?transport=udp"},
		Username:   "1:p:alice",
		Credential: "secret",
	}}, servers)
}

func TestProviderResolveFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		},
		"body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"invalid server": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"uris":["turn:turn.example.com"]}`))
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := NewProvider(srv.URL).Resolve(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestProviderResolveEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"uris":[]}`))
	}))
	defer srv.Close()

	servers, err := NewProvider(srv.URL).Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, servers)
}
