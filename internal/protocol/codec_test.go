package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeWireShape checks the exact JSON field names peers depend on.
func TestEncodeWireShape(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
		want string
	}{
		{"offer", NewOffer("v=0\r\n"), `{"type":"offer","sdp":"v=0\r\n"}`},
		{"answer", NewAnswer("v=0\r\n"), `{"type":"answer","sdp":"v=0\r\n"}`},
		{
			"candidate with label 0",
			NewCandidate(Candidate{SDPMLineIndex: 0, SDPMid: "audio", Candidate: "candidate:1 1 udp 1 1.2.3.4 5 typ host"}),
			`{"type":"candidate","label":0,"id":"audio","candidate":"candidate:1 1 udp 1 1.2.3.4 5 typ host"}`,
		},
		{"bye", NewBye(), `{"type":"bye"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestDecodeCandidate(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"candidate","label":1,"id":"video","candidate":"candidate:2 1 udp 5 10.0.0.1 9 typ host"}`))
	require.NoError(t, err)
	require.Equal(t, TypeCandidate, msg.Type)
	require.NotNil(t, msg.Candidate)
	assert.Equal(t, 1, msg.Candidate.SDPMLineIndex)
	assert.Equal(t, "video", msg.Candidate.SDPMid)
	assert.Equal(t, "candidate:2 1 udp 5 10.0.0.1 9 typ host", msg.Candidate.Candidate)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	// Browsers serialize RTCSessionDescription directly, which may carry
	// extra keys.
	msg, err := Decode([]byte(`{"type":"answer","sdp":"v=0","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, NewAnswer("v=0"), msg)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"unknown type", `{"type":"hello"}`},
		{"offer without sdp", `{"type":"offer"}`},
		{"answer with empty sdp", `{"type":"answer","sdp":""}`},
		{"candidate without line", `{"type":"candidate","label":0,"id":"audio"}`},
		{"missing type", `{"sdp":"v=0"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeRejectsCandidateWithoutPayload(t *testing.T) {
	_, err := Encode(Message{Type: TypeCandidate})
	assert.Error(t, err)

	_, err = Encode(Message{Type: "hello"})
	assert.Error(t, err)
}

func TestEncodeDecodeOffer(t *testing.T) {
	sdp := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"
	data, err := Encode(NewOffer(sdp))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 2)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, NewOffer(sdp), msg)
}
