package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pion/webrtc/v4"
)

// JoinResponse is returned by GET /join.
type JoinResponse struct {
	RoomID     string             `json:"room_id"`
	ClientID   string             `json:"client_id"`
	Initiator  bool               `json:"initiator"`
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
	TurnURL    string             `json:"turn_url,omitempty"`
}

// Join asks the relay server at base for a slot in room.
func Join(ctx context.Context, client *http.Client, base, room string) (JoinResponse, error) {
	joinURL, err := HTTPURL(base, "/join")
	if err != nil {
		return JoinResponse{}, err
	}
	joinURL += "?" + url.Values{"r": {room}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL, nil)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to build join request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to join room: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return JoinResponse{}, fmt.Errorf("room %q is full", room)
	default:
		return JoinResponse{}, fmt.Errorf("join returned %s", resp.Status)
	}

	var out JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return JoinResponse{}, fmt.Errorf("failed to decode join response: %w", err)
	}
	return out, nil
}
