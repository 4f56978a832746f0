// ABOUTME: Bearer token discovery for the boardroom TUI.
// ABOUTME: Reads BOARDROOM_TOKEN or the XDG token file.

package main

import (
	"os"
	"path/filepath"
	"strings"
)

// getToken returns the bearer token from the BOARDROOM_TOKEN env var or the
// ~/.config/boardroom/token file. An empty return means no auth.
func getToken() string {
	// Check env var first
	if token := os.Getenv("BOARDROOM_TOKEN"); token != "" {
		return token
	}

	// Try to read from token file
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "boardroom", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
