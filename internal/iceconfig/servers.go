// Package iceconfig resolves the ICE servers used by a call: built-in STUN
// defaults, user-supplied server lists, TURN lookups over HTTP and
// coturn-compatible TURN REST credentials for the relay server.
package iceconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// STUN servers used when nothing else is configured.
var defaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DefaultServers returns a fresh STUN-only server list.
func DefaultServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: append([]string(nil), defaultSTUN...)}}
}

type serverJSON struct {
	URLs       stringOrSlice `json:"urls"`
	Username   string        `json:"username,omitempty"`
	Credential string        `json:"credential,omitempty"`
}

// stringOrSlice accepts both "urls": "stun:..." and "urls": ["stun:..."].
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseJSON parses and validates a JSON array of RTCIceServer-shaped objects.
func ParseJSON(raw string) ([]webrtc.ICEServer, error) {
	var servers []serverJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		srv := webrtc.ICEServer{
			URLs:     trimAll(server.URLs),
			Username: strings.TrimSpace(server.Username),
		}
		if strings.TrimSpace(server.Credential) != "" {
			srv.Credential = server.Credential
		}
		if err := Validate(srv); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, srv)
	}
	return out, nil
}

// ParseURLs builds a server list from comma-separated STUN and TURN URLs.
// TURN URLs share one username/credential pair.
func ParseURLs(stunURLs, turnURLs, username, credential string) ([]webrtc.ICEServer, error) {
	stunList := SplitComma(stunURLs)
	turnList := SplitComma(turnURLs)

	var servers []webrtc.ICEServer
	if len(stunList) > 0 {
		srv := webrtc.ICEServer{URLs: stunList}
		if err := Validate(srv); err != nil {
			return nil, fmt.Errorf("stun urls: %w", err)
		}
		servers = append(servers, srv)
	}

	if len(turnList) > 0 {
		username = strings.TrimSpace(username)
		credential = strings.TrimSpace(credential)
		if username == "" || credential == "" {
			return nil, errors.New("turn username and credential must both be set with turn urls")
		}

		srv := webrtc.ICEServer{URLs: turnList, Username: username, Credential: credential}
		if err := Validate(srv); err != nil {
			return nil, fmt.Errorf("turn urls: %w", err)
		}
		servers = append(servers, srv)
	}

	return servers, nil
}

// Validate checks URL schemes and that TURN entries carry credentials.
func Validate(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if url == "" {
			return errors.New("urls must not contain empty entries")
		}
		if !allowedScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if isTURN(url) {
			needsCreds = true
		}
	}

	if needsCreds {
		if strings.TrimSpace(server.Username) == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}

// HasTURN reports whether any server in the list is a TURN server.
func HasTURN(servers []webrtc.ICEServer) bool {
	for _, srv := range servers {
		for _, url := range srv.URLs {
			if isTURN(strings.TrimSpace(url)) {
				return true
			}
		}
	}
	return false
}

// SplitComma splits a comma-separated list, dropping empty entries.
func SplitComma(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return trimAll(strings.Split(value, ","))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func allowedScheme(url string) bool {
	lower := strings.ToLower(url)
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func isTURN(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "turn:") || strings.HasPrefix(lower, "turns:")
}
