package iceconfig

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServers(t *testing.T) {
	servers := DefaultServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}, servers[0].URLs)
	assert.False(t, HasTURN(servers))

	// Callers get their own copy.
	servers[0].URLs[0] = "stun:changed"
	assert.Equal(t, "stun:stun.l.google.com:19302", DefaultServers()[0].URLs[0])
}

func TestParseJSON(t *testing.T) {
	raw := `[
	  {"urls": "stun:stun.example.com:3478"},
	  {"urls": ["turn:turn.example.com:3478?transport=udp", " "], "username": "user", "credential": "pass"}
	]`

	servers, err := ParseJSON(raw)
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Nil(t, servers[0].Credential)
	assert.Equal(t, []string{"turn:turn.example.com:3478?transport=udp"}, servers[1].URLs)
	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)
	assert.True(t, HasTURN(servers))
}

func TestParseJSONRejects(t *testing.T) {
	tests := map[string]string{
		"not json":           `{`,
		"missing urls":       `[{"username": "u"}]`,
		"bad scheme":         `[{"urls": "http://example.com"}]`,
		"turn without creds": `[{"urls": "turn:turn.example.com"}]`,
		"turn without pass":  `[{"urls": "turns:turn.example.com", "username": "u"}]`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON(raw)
			assert.Error(t, err)
		})
	}
}

func TestParseURLs(t *testing.T) {
	servers, err := ParseURLs("stun:a.example.com, stun:b.example.com,", "turn:t.example.com", "u", "p")
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:a.example.com", "stun:b.example.com"}, servers[0].URLs)
	assert.Equal(t, webrtc.ICEServer{URLs: []string{"turn:t.example.com"}, Username: "u", Credential: "p"}, servers[1])

	_, err = ParseURLs("", "turn:t.example.com", "u", "")
	assert.Error(t, err)

	servers, err = ParseURLs("", "", "", "")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestSplitComma(t *testing.T) {
	assert.Nil(t, SplitComma("  "))
	assert.Equal(t, []string{"a", "b"}, SplitComma(" a ,, b "))
}
