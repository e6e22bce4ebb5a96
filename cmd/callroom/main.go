// Callroom CLI entry point.
//
// The serve command runs the room relay that pairs two clients and forwards
// their signaling messages. The join command enters a room and sets up a
// WebRTC call with whoever else is in it.
//
// Both commands can be configured with a YAML file (--config), environment
// variables or flags. Missing join parameters are asked for interactively.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/1ureka/callroom/internal/app"
	"github.com/1ureka/callroom/internal/config"
	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/relay"
	"github.com/1ureka/callroom/internal/signaling"
	"github.com/1ureka/callroom/internal/transport"
	"github.com/1ureka/callroom/internal/util"
)

var version = "dev"

var commonFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to a YAML config `file`",
		EnvVars: []string{"CALLROOM_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		EnvVars: []string{"CALLROOM_LOG_LEVEL"},
	},
	&cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug logging",
	},
	&cli.StringFlag{
		Name:    "ice-servers",
		Usage:   "ICE servers as a JSON array of RTCIceServer objects",
		EnvVars: []string{"CALLROOM_ICE_SERVERS"},
	},
	&cli.StringFlag{
		Name:    "stun",
		Usage:   "comma-separated STUN URLs",
		EnvVars: []string{"CALLROOM_STUN_URLS"},
	},
	&cli.StringFlag{
		Name:    "turn",
		Usage:   "comma-separated TURN URLs",
		EnvVars: []string{"CALLROOM_TURN_URLS"},
	},
	&cli.StringFlag{
		Name:    "turn-username",
		EnvVars: []string{"CALLROOM_TURN_USERNAME"},
	},
	&cli.StringFlag{
		Name:    "turn-credential",
		EnvVars: []string{"CALLROOM_TURN_CREDENTIAL"},
	},
}

var joinFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "server",
		Usage:   "relay server base URL",
		EnvVars: []string{"CALLROOM_SERVER"},
	},
	&cli.StringFlag{
		Name:    "room",
		Usage:   "room to join",
		EnvVars: []string{"CALLROOM_ROOM"},
	},
	&cli.BoolFlag{
		Name:  "audio",
		Usage: "send audio",
		Value: true,
	},
	&cli.BoolFlag{
		Name:  "video",
		Usage: "send video",
		Value: true,
	},
	&cli.BoolFlag{
		Name:  "mute-audio",
		Usage: "start with the local audio muted",
	},
	&cli.BoolFlag{
		Name:  "mute-video",
		Usage: "start with the local video muted",
	},
	&cli.StringFlag{
		Name:  "codec",
		Usage: "preferred audio codec",
	},
	&cli.IntFlag{
		Name:  "clock-rate",
		Usage: "clock rate of the preferred audio codec",
	},
	&cli.BoolFlag{
		Name:  "stereo",
		Usage: "request stereo audio from the remote peer",
	},
	&cli.BoolFlag{
		Name:  "ice-restart",
		Usage: "request an ICE restart in the offer",
	},
	&cli.StringFlag{
		Name:    "turn-url",
		Usage:   "TURN credential lookup URL, overrides the one from the relay server",
		EnvVars: []string{"CALLROOM_TURN_URL"},
	},
	&cli.DurationFlag{
		Name:  "stats-interval",
		Usage: "how often signaling statistics are logged, 0 disables",
	},
}

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen",
		Usage:   "address to listen on",
		EnvVars: []string{"CALLROOM_LISTEN"},
	},
	&cli.StringFlag{
		Name:    "turn-secret",
		Usage:   "shared secret for TURN REST credentials, enables /turn",
		EnvVars: []string{"CALLROOM_TURN_SECRET"},
	},
	&cli.StringSliceFlag{
		Name:  "turn-uri",
		Usage: "TURN URI handed out with generated credentials, repeatable",
	},
	&cli.DurationFlag{
		Name:  "turn-ttl",
		Usage: "lifetime of generated TURN credentials",
	},
}

func main() {
	cliApp := &cli.App{
		Name:    "callroom",
		Usage:   "two-party WebRTC calls over a room relay",
		Version: version,
		Before: func(c *cli.Context) error {
			pterm.Info.Println(fmt.Sprintf("Callroom v%s", version))
			pterm.Println()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the room relay server",
				Flags:  append(append([]cli.Flag{}, commonFlags...), serveFlags...),
				Action: runServe,
			},
			{
				Name:   "join",
				Usage:  "join a room and start a call",
				Flags:  append(append([]cli.Flag{}, commonFlags...), joinFlags...),
				Action: runJoin,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	servers, err := cfg.ICEServers()
	if err != nil {
		return err
	}

	serverCfg := relay.ServerConfig{ICEServers: servers}
	if cfg.Turn.Secret != "" {
		gen, err := iceconfig.NewGenerator(iceconfig.GeneratorConfig{
			SharedSecret: cfg.Turn.Secret,
			TTL:          cfg.Turn.TTL,
			Prefix:       cfg.Turn.Prefix,
		})
		if err != nil {
			return fmt.Errorf("invalid turn settings: %w", err)
		}
		serverCfg.Turn = gen
		serverCfg.TurnURIs = cfg.Turn.URIs
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = relay.NewServer(serverCfg).Serve(ctx, cfg.Listen, func(addr net.Addr) {
		util.LogSuccess("Relay listening on %s", addr)
	})
	if err != nil {
		return err
	}
	util.LogInfo("Relay stopped")
	return nil
}

func runJoin(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// No room given: ask for the connection details interactively.
	if cfg.Room == "" {
		cfg.Server = askServer(cfg.Server)
		cfg.Room = askRoom()
	}
	if err := cfg.ValidateJoin(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	call := app.NewCall(cfg, transport.NewSyntheticCapture(), transport.Factory)
	if err := call.Run(ctx); err != nil {
		return err
	}
	util.LogInfo("Call closed")
	return nil
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// loadConfig layers the config file, then flags and environment variables,
// on top of the defaults.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := util.SetLogLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	if c.Bool("debug") {
		util.EnableDebug()
	}

	setString(c, "ice-servers", &cfg.ICE.ServersJSON)
	setString(c, "stun", &cfg.ICE.STUNURLs)
	setString(c, "turn", &cfg.ICE.TURNURLs)
	setString(c, "turn-username", &cfg.ICE.TURNUsername)
	setString(c, "turn-credential", &cfg.ICE.TURNCredential)

	// join
	setString(c, "server", &cfg.Server)
	setString(c, "room", &cfg.Room)
	setString(c, "codec", &cfg.Codec.Name)
	setString(c, "turn-url", &cfg.ICE.TurnURL)
	if c.IsSet("audio") {
		cfg.Media.Audio = c.Bool("audio")
	}
	if c.IsSet("video") {
		cfg.Media.Video = c.Bool("video")
	}
	if c.IsSet("mute-audio") {
		cfg.Mute.Audio = c.Bool("mute-audio")
	}
	if c.IsSet("mute-video") {
		cfg.Mute.Video = c.Bool("mute-video")
	}
	if c.IsSet("clock-rate") {
		cfg.Codec.ClockRate = c.Int("clock-rate")
	}
	if c.IsSet("stereo") {
		cfg.Codec.Stereo = c.Bool("stereo")
	}
	if c.Bool("ice-restart") {
		cfg.OfferConstraints = signaling.MergeConstraints(
			cfg.OfferConstraints,
			signaling.Constraints{Mandatory: map[string]bool{"IceRestart": true}},
		)
	}
	if c.IsSet("stats-interval") {
		cfg.StatsInterval = c.Duration("stats-interval")
	}

	// serve
	setString(c, "listen", &cfg.Listen)
	setString(c, "turn-secret", &cfg.Turn.Secret)
	if c.IsSet("turn-uri") {
		cfg.Turn.URIs = c.StringSlice("turn-uri")
	}
	if c.IsSet("turn-ttl") {
		cfg.Turn.TTL = c.Duration("turn-ttl")
	}

	return cfg, nil
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}
