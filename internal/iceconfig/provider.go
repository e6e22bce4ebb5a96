package iceconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	defaultTimeout  = 5 * time.Second
	maxResponseSize = 64 * 1024
)

// TurnResponse is the body returned by a TURN credential service.
type TurnResponse struct {
	URIs     []string `json:"uris"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	TTL      int64    `json:"ttl,omitempty"`
}

// Servers converts the response into a single ICE server entry. It returns
// nil when the response carries no URIs.
func (r TurnResponse) Servers() []webrtc.ICEServer {
	uris := trimAll(r.URIs)
	if len(uris) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: uris, Username: r.Username, Credential: r.Password}}
}

// Provider fetches TURN servers from an HTTP endpoint. It implements
// signaling.IceConfigProvider.
type Provider struct {
	URL    string
	Client *http.Client
}

func NewProvider(url string) *Provider {
	return &Provider{URL: url, Client: &http.Client{Timeout: defaultTimeout}}
}

// Resolve performs one GET against the provider URL. Any non-200 status or an
// undecodable body is an error.
func (p *Provider) Resolve(ctx context.Context) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ice config request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ice config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ice config request returned %s", resp.Status)
	}

	var body TurnResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode ice config: %w", err)
	}

	servers := body.Servers()
	for _, srv := range servers {
		if err := Validate(srv); err != nil {
			return nil, fmt.Errorf("invalid ice config: %w", err)
		}
	}
	return servers, nil
}
