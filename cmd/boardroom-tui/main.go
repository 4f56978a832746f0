// ABOUTME: Terminal client for the boardroom multi-agent orchestration engine.
// ABOUTME: Provides readline-style input and colored per-agent streaming output.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/sruim/boardroom-client/internal/boardroom"
	"github.com/sruim/boardroom-client/internal/config"
	"github.com/sruim/boardroom-client/internal/event"
	"github.com/sruim/boardroom-client/internal/orchestrator"
	"github.com/sruim/boardroom-client/internal/session"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Config file path")
	server := flag.String("server", "", "Engine URL (overrides config)")
	mode := flag.String("mode", "", "Transport mode: fetch or subscribe (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *server, *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Engine:   %s\n", cfg.Engine.URL)
	green.Print("    ▶ ")
	fmt.Printf("Mode:     %s\n", cfg.Engine.Mode)
	green.Print("    ▶ ")
	fmt.Printf("Sessions: %s\n", cfg.Database.Path)
	if cfg.Engine.Token != "" {
		green.Print("    ▶ ")
		fmt.Println("Auth:     bearer token configured")
	}
	fmt.Println()
	fmt.Println("Ask the boardroom anything. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := session.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer store.Close()

	svc := boardroom.New(cfg, store, logger)
	defer svc.Close()

	personas, err := loadPersonas()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/sessions" {
			if err := listSessions(ctx, svc); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if arg, ok := strings.CutPrefix(input, "/load "); ok {
			if err := svc.LoadSession(ctx, strings.TrimSpace(arg)); err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				fmt.Println("Session loaded. The next question continues that conversation.")
				printHistory(svc)
			}
			fmt.Println()
			continue
		}

		if arg, ok := strings.CutPrefix(input, "/delete "); ok {
			if err := svc.DeleteSession(ctx, strings.TrimSpace(arg)); err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				fmt.Println("Session deleted.")
			}
			fmt.Println()
			continue
		}

		if input == "/new" {
			svc.NewSession()
			fmt.Println("Started a fresh session.")
			fmt.Println()
			continue
		}

		if input == "/history" {
			printHistory(svc)
			fmt.Println()
			continue
		}

		if input == "/stop" {
			svc.Stop()
			fmt.Println("Stopped the round in flight.")
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/") {
			fmt.Printf("Unknown command %s. /help lists commands.\n\n", input)
			continue
		}

		if err := ask(ctx, svc, personas, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /sessions      List stored sessions")
	fmt.Println("  /load <id>     Load a stored session")
	fmt.Println("  /delete <id>   Delete a stored session")
	fmt.Println("  /new           Start a fresh session")
	fmt.Println("  /history       Show the conversation so far")
	fmt.Println("  /stop          Abort the round in flight")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

// listSessions prints stored sessions, most recent first.
func listSessions(ctx context.Context, svc *boardroom.Service) error {
	sessions, err := svc.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions")
		return nil
	}

	fmt.Println("Stored sessions:")
	for _, s := range sessions {
		marker := "  "
		if s.ID == svc.SessionID() {
			marker = "* "
		}
		fmt.Printf("%s%s  %-33s %s\n", marker, s.ID, s.Title, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// printHistory shows the folded conversation log.
func printHistory(svc *boardroom.Service) {
	history := svc.Machine().Snapshot().History
	if len(history) == 0 {
		fmt.Println("No conversation history")
		return
	}

	fmt.Println(strings.Repeat("-", 60))
	for _, msg := range history {
		if msg.Role == orchestrator.HistoryRoleUser {
			color.New(color.FgBlue).Print("→ ")
		} else {
			color.New(color.FgGreen).Print("← ")
		}
		fmt.Println(msg.Content)
	}
	fmt.Println(strings.Repeat("-", 60))
}

// ask submits a query and renders the round as it streams. It returns when
// the round reaches a terminal status or ctx is cancelled.
func ask(ctx context.Context, svc *boardroom.Service, personas map[event.Role]persona, query string) error {
	machine := svc.Machine()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	states, subID := machine.Subscribe(subCtx)
	defer machine.Unsubscribe(subID)

	if err := svc.Ask(ctx, query); err != nil {
		return err
	}

	r := newRenderer(personas)

	// The ticker is a safety net: snapshots are cumulative, so rendering the
	// latest one recovers anything a full subscriber buffer dropped.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			svc.Stop()
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if done := r.render(state); done {
				return nil
			}
		case <-ticker.C:
			if done := r.render(machine.Snapshot()); done {
				return nil
			}
		}
	}
}

// renderer tracks what has been printed so cumulative snapshots render as
// increments.
type renderer struct {
	personas  map[event.Role]persona
	printed   map[string]int // runes printed per agent id
	failed    map[string]bool
	lastAgent string
	announced bool
}

func newRenderer(personas map[event.Role]persona) *renderer {
	return &renderer{
		personas: personas,
		printed:  make(map[string]int),
		failed:   make(map[string]bool),
	}
}

// render prints whatever the snapshot adds over what is already on screen.
// It returns true when the round is terminal and rendering is complete.
func (r *renderer) render(state *orchestrator.State) bool {
	round := state.CurrentRound()
	if round == nil {
		return state.Status == orchestrator.StatusError
	}

	if !r.announced && len(round.Agents) > 0 {
		r.announceRoster(round)
		r.announced = true
	}

	for _, role := range event.Roles {
		agent, ok := round.Agents[string(role)]
		if !ok {
			continue
		}

		content := []rune(agent.Content)
		if len(content) > r.printed[agent.ID] {
			if r.lastAgent != agent.ID {
				if r.lastAgent != "" {
					fmt.Println()
				}
				p := r.personas[role]
				p.Color.Printf("%s: ", p.Label)
				r.lastAgent = agent.ID
			}
			fmt.Print(string(content[r.printed[agent.ID]:]))
			r.printed[agent.ID] = len(content)
		}

		if agent.Status == orchestrator.AgentError && !r.failed[agent.ID] {
			if r.lastAgent != "" {
				fmt.Println()
				r.lastAgent = ""
			}
			p := r.personas[role]
			color.New(color.FgRed).Printf("[%s failed: %s]\n", p.Label, agent.Error)
			r.failed[agent.ID] = true
		}
	}

	switch state.Status {
	case orchestrator.StatusFinished:
		fmt.Println()
		return true
	case orchestrator.StatusError:
		if r.lastAgent != "" {
			fmt.Println()
		}
		color.New(color.FgRed).Printf("[error] %s\n", state.Error)
		return true
	}
	return false
}

// announceRoster prints which agents the engine convened for the round.
func (r *renderer) announceRoster(round *orchestrator.Round) {
	var names []string
	for _, role := range event.Roles {
		if _, ok := round.Agents[string(role)]; ok {
			p := r.personas[role]
			names = append(names, p.Color.Sprint(p.Label))
		}
	}
	dim := color.New(color.Faint)
	dim.Print("convened: ")
	fmt.Println(strings.Join(names, ", "))
}

// loadConfig reads the config file when present and applies flag overrides.
// A missing file plus a -server flag is a valid zero-config start.
func loadConfig(path, server, mode string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if server != "" {
		cfg.Engine.URL = server
	}
	if mode != "" {
		cfg.Engine.Mode = mode
	}
	if cfg.Engine.Token == "" {
		cfg.Engine.Token = getToken()
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDBPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfigPath is ~/.config/boardroom/config.yaml (XDG aware).
func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "boardroom", "config.yaml")
}

// defaultDBPath is ~/.local/share/boardroom/sessions.db (XDG aware).
func defaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "sessions.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "boardroom", "sessions.db")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Logs go to stderr so they do not tear streamed output.
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
