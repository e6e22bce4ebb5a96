package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/callroom/internal/relay"
	"github.com/1ureka/callroom/internal/util"
)

// askServer prompts for the relay base URL until a usable one is entered.
// An empty answer keeps current.
func askServer(current string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Relay server URL (empty for %s)", current)).
			Show()
		pterm.Println()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			return current
		}
		if _, err := relay.HTTPURL(raw, "/"); err == nil {
			return raw
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askRoom prompts for a non-empty room name.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room name").
			Show()
		pterm.Println()

		if room := strings.TrimSpace(raw); room != "" {
			return room
		}
		util.LogWarning("room name must not be empty")
	}
}
