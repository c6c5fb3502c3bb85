// ABOUTME: Terminal client for the widget synchronization engine.
// ABOUTME: Drives the engine from stdin and renders timeline events with color.

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
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/driftchat/widgetsync/internal/api"
	"github.com/driftchat/widgetsync/internal/channel"
	"github.com/driftchat/widgetsync/internal/channel/phoenix"
	"github.com/driftchat/widgetsync/internal/config"
	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/model"
	"github.com/driftchat/widgetsync/internal/widget"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to widget config YAML")
	accountID := flag.String("account", "", "Papercups account id (overrides config)")
	baseURL := flag.String("base-url", "", "Backend base URL (overrides config)")
	customerID := flag.String("customer", "", "Cached customer id from a previous session")
	name := flag.String("name", "", "Customer display name")
	email := flag.String("email", "", "Customer email")
	flag.Parse()

	gray := color.New(color.FgHiBlack)
	fmt.Printf("widget-cli %s\n", version)
	gray.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *accountID, *baseURL, *customerID, *name, *email); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, accountID, baseURL, customerID, name, email string) error {
	cfg, err := loadConfig(configPath, accountID, baseURL, name, email)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	backend := api.NewClient(cfg.BaseURL, cfg.AccountID, nil)
	sink := newConsoleSink(os.Stdout)

	socket := phoenix.NewSocket(cfg.WebsocketURL(), logger)
	channels := channel.NewManager(socket, sink, cfg.AccountID, logger)

	engine := widget.New(cfg, backend, channels, sink, logger)
	if err := engine.Start(ctx, customerID); err != nil {
		return fmt.Errorf("starting widget: %w", err)
	}
	defer engine.Close()

	// The terminal widget starts open: everything on screen is visible.
	engine.Toggle(true)

	printTimeline(engine.Messages())
	return inputLoop(ctx, engine)
}

func loadConfig(path, accountID, baseURL, name, email string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if accountID != "" {
		cfg.AccountID = accountID
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if name != "" {
		cfg.Customer.Name = name
	}
	if email != "" {
		cfg.Customer.Email = email
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func inputLoop(ctx context.Context, engine *widget.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

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

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printHelp()

		case input == "/open":
			engine.Toggle(true)

		case input == "/close":
			engine.Toggle(false)

		case input == "/hide":
			engine.SetPageVisible(false)
			fmt.Println("(page hidden)")

		case input == "/show":
			engine.SetPageVisible(true)
			fmt.Println("(page visible)")

		case input == "/agents":
			printAgents(engine.AvailableAgents())

		case input == "/history":
			printTimeline(engine.Messages())

		default:
			if err := engine.SendMessage(ctx, input, nil); err != nil {
				color.Red("send failed: %v", err)
			}
		}
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /open     Open the widget (marks pending messages seen)")
	fmt.Println("  /close    Close the widget")
	fmt.Println("  /show     Mark the page visible")
	fmt.Println("  /hide     Mark the page hidden")
	fmt.Println("  /agents   List available agents")
	fmt.Println("  /history  Reprint the message timeline")
	fmt.Println("  /quit     Exit")
}

func printAgents(agents []model.AgentPresenceInfo) {
	if len(agents) == 0 {
		fmt.Println("No agents online.")
		return
	}
	for _, a := range agents {
		fmt.Printf("  %s", a.Name)
		if a.Email != "" {
			color.New(color.FgHiBlack).Printf(" <%s>", a.Email)
		}
		fmt.Println()
	}
}

func printTimeline(msgs []model.Message) {
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m model.Message) {
	label := "you"
	c := color.New(color.FgGreen)
	switch {
	case m.Type == model.MessageTypeBot:
		label = "bot"
		c = color.New(color.FgMagenta)
	case m.IsFromAgent():
		label = "agent"
		c = color.New(color.FgCyan)
	}

	c.Printf("[%s] ", label)
	fmt.Print(m.Body)
	if !m.IsConfirmed() {
		color.New(color.FgHiBlack).Print(" (sending...)")
	}
	fmt.Println()
}

// consoleSink renders engine notifications for a terminal embedding. It plays
// the role the postMessage bridge plays in a browser.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (s *consoleSink) Emit(e hostbridge.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Kind {
	case hostbridge.EventMessageReceived:
		if m, ok := e.Payload.(model.Message); ok && m.IsFromAgent() {
			fmt.Fprintln(s.w)
			printMessage(m)
			fmt.Fprint(s.w, "> ")
		}

	case hostbridge.EventMessagesUnseen:
		if p, ok := e.Payload.(hostbridge.UnseenPayload); ok {
			color.New(color.FgYellow).Fprintf(s.w, "\n(unread) %s\n> ", p.Message.Body)
		}

	case hostbridge.EventCustomerCreated:
		if p, ok := e.Payload.(hostbridge.CustomerPayload); ok {
			color.New(color.FgHiBlack).Fprintf(s.w, "(customer %s — pass -customer to reuse next session)\n", p.CustomerID)
		}

	case hostbridge.EventConversationJoin:
		if p, ok := e.Payload.(hostbridge.ConversationJoinPayload); ok {
			color.New(color.FgHiBlack).Fprintf(s.w, "(joined conversation %s)\n", p.ConversationID)
		}

	case hostbridge.EventOpen:
		color.New(color.FgHiBlack).Fprintln(s.w, "(widget open)")

	case hostbridge.EventClose:
		color.New(color.FgHiBlack).Fprintln(s.w, "(widget closed)")
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
