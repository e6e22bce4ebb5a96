package iceconfig

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator issues coturn-compatible TURN REST credentials:
//
//	username = <unix expiry>:<prefix>:<session id>
//	password = base64(hmac_sha1(secret, username))
type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

type GeneratorConfig struct {
	SharedSecret string
	TTL          time.Duration
	Prefix       string

	// Now defaults to time.Now.
	Now func() time.Time
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTL < time.Second {
		return nil, errors.New("ttl must be at least one second")
	}
	if cfg.Prefix == "" {
		return nil, errors.New("prefix is required")
	}
	if strings.Contains(cfg.Prefix, ":") {
		return nil, errors.New("prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
		now:    cfg.Now,
	}, nil
}

// Generate returns credentials for the given TURN URIs. An empty sessionID is
// replaced by a random one.
func (g *Generator) Generate(uris []string, sessionID string) (TurnResponse, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if strings.Contains(sessionID, ":") {
		return TurnResponse{}, errors.New("session id must not contain ':'")
	}

	expiry := g.now().UTC().Add(g.ttl).Unix()
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, sessionID)
	return TurnResponse{
		URIs:     append([]string(nil), uris...),
		Username: username,
		Password: sign(g.secret, username),
		TTL:      int64(g.ttl / time.Second),
	}, nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
