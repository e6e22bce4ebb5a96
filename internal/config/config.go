// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/signaling"
)

// Config stores every parameter of the join and serve commands. Values come
// from Default, then an optional YAML file, then CLI flags and prompts.
type Config struct {
	// Join side.
	Server string `yaml:"server"` // relay base URL
	Room   string `yaml:"room"`

	Media            signaling.MediaConstraints `yaml:"media"`
	Mute             MuteConfig                 `yaml:"mute"`
	OfferConstraints signaling.Constraints      `yaml:"offer_constraints"`
	Codec            CodecConfig                `yaml:"codec"`
	ICE              ICEConfig                  `yaml:"ice"`

	// Serve side.
	Listen string     `yaml:"listen"`
	Turn   TurnConfig `yaml:"turn"`

	LogLevel      string        `yaml:"log_level"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// MuteConfig starts a call with local tracks disabled.
type MuteConfig struct {
	Audio bool `yaml:"audio"`
	Video bool `yaml:"video"`
}

// CodecConfig selects the preferred audio codec.
type CodecConfig struct {
	Name      string `yaml:"name"`
	ClockRate int    `yaml:"clock_rate"`
	Stereo    bool   `yaml:"stereo"`
}

// ICEConfig lists ICE servers either as JSON or as comma-separated URLs.
// ServersJSON wins when both are set.
type ICEConfig struct {
	ServersJSON    string `yaml:"servers_json"`
	STUNURLs       string `yaml:"stun_urls"`
	TURNURLs       string `yaml:"turn_urls"`
	TURNUsername   string `yaml:"turn_username"`
	TURNCredential string `yaml:"turn_credential"`

	// TurnURL overrides the TURN lookup URL handed out by the relay server.
	TurnURL string `yaml:"turn_url"`
}

// Explicit reports whether any ICE server was configured locally.
func (c ICEConfig) Explicit() bool {
	return strings.TrimSpace(c.ServersJSON+c.STUNURLs+c.TURNURLs) != ""
}

// TurnConfig enables TURN REST credentials on the relay server.
type TurnConfig struct {
	Secret string        `yaml:"secret"`
	URIs   []string      `yaml:"uris"`
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: "http://127.0.0.1:8089",
		Media:  signaling.MediaConstraints{Audio: true, Video: true},
		Codec: CodecConfig{
			Name:      "opus",
			ClockRate: 48000,
		},
		Listen: ":8089",
		Turn: TurnConfig{
			TTL:    24 * time.Hour,
			Prefix: "callroom",
		},
		LogLevel:      "info",
		StatsInterval: 5 * time.Second,
	}
}

// LoadFile reads a YAML file on top of Default.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields shared by both commands.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Codec.Name) == "" {
		return errors.New("codec name must not be empty")
	}
	if c.Codec.ClockRate <= 0 {
		return fmt.Errorf("invalid codec clock rate %d", c.Codec.ClockRate)
	}
	if !c.Media.Audio && !c.Media.Video {
		return errors.New("at least one of audio or video must be enabled")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid stats interval %s", c.StatsInterval)
	}
	if _, err := c.ICEServers(); err != nil {
		return err
	}
	if c.Turn.Secret != "" && len(c.Turn.URIs) == 0 {
		return errors.New("turn secret requires at least one turn uri")
	}
	return nil
}

// ValidateJoin additionally checks what the join command needs.
func (c Config) ValidateJoin() error {
	if strings.TrimSpace(c.Room) == "" {
		return errors.New("missing room")
	}
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("missing relay server URL")
	}
	return c.Validate()
}

// ICEServers resolves the configured ICE servers. With nothing configured it
// falls back to the built-in STUN servers.
func (c Config) ICEServers() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(c.ICE.ServersJSON); raw != "" {
		servers, err := iceconfig.ParseJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("ice servers json: %w", err)
		}
		return servers, nil
	}

	servers, err := iceconfig.ParseURLs(c.ICE.STUNURLs, c.ICE.TURNURLs, c.ICE.TURNUsername, c.ICE.TURNCredential)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return iceconfig.DefaultServers(), nil
	}
	return servers, nil
}
