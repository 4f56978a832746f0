// ABOUTME: Persona display metadata for the boardroom TUI.
// ABOUTME: Maps agent roles to labels and colors, with an optional TOML override.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/sruim/boardroom-client/internal/event"
)

// persona is how one agent role renders in the terminal.
type persona struct {
	Label string
	Color *color.Color
}

// personaOverride is one [roles.<name>] entry in personas.toml.
type personaOverride struct {
	Label string `toml:"label"`
	Color string `toml:"color"`
}

// personaFile is the TOML override file shape.
type personaFile struct {
	Roles map[string]personaOverride `toml:"roles"`
}

var colorsByName = map[string]*color.Color{
	"red":     color.New(color.FgRed),
	"green":   color.New(color.FgGreen),
	"yellow":  color.New(color.FgYellow),
	"blue":    color.New(color.FgBlue),
	"magenta": color.New(color.FgMagenta),
	"cyan":    color.New(color.FgCyan),
	"white":   color.New(color.FgWhite),
}

// defaultPersonas returns the stock role table.
func defaultPersonas() map[event.Role]persona {
	return map[event.Role]persona{
		event.RoleCritic:      {Label: "Critic", Color: color.New(color.FgRed)},
		event.RoleHistorian:   {Label: "Historian", Color: color.New(color.FgBlue)},
		event.RoleExpander:    {Label: "Expander", Color: color.New(color.FgGreen)},
		event.RolePragmatist:  {Label: "Pragmatist", Color: color.New(color.FgYellow)},
		event.RoleVerifier:    {Label: "Verifier", Color: color.New(color.FgMagenta)},
		event.RoleSynthesizer: {Label: "Synthesizer", Color: color.New(color.FgCyan)},
		event.RoleMediator:    {Label: "Mediator", Color: color.New(color.FgWhite)},
	}
}

// loadPersonas returns the role table with any personas.toml overrides
// applied. A missing file is fine; a broken one is an error.
func loadPersonas() (map[event.Role]persona, error) {
	personas := defaultPersonas()

	path := personasPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return personas, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var overrides personaFile
	if _, err := toml.Decode(string(data), &overrides); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for name, o := range overrides.Roles {
		role := event.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("personas.toml: unknown role %q", name)
		}
		p := personas[role]
		if o.Label != "" {
			p.Label = o.Label
		}
		if o.Color != "" {
			c, ok := colorsByName[o.Color]
			if !ok {
				return nil, fmt.Errorf("personas.toml: unknown color %q for role %q", o.Color, name)
			}
			p.Color = c
		}
		personas[role] = p
	}

	return personas, nil
}

// personasPath returns the XDG location of the persona override file.
func personasPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "personas.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "boardroom", "personas.toml")
}
