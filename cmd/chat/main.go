// Interactive terminal client for a remote agent session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ikozlov666/aiagent/internal/config"
	"github.com/ikozlov666/aiagent/internal/protocol"
	"github.com/ikozlov666/aiagent/internal/session"
	"github.com/ikozlov666/aiagent/internal/transcript"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	project := flag.String("project", cfg.ProjectID, "project handle for the session")
	server := flag.String("server", cfg.ServerURL, "agent backend base URL")
	flag.Parse()
	cfg.ProjectID = *project
	cfg.ServerURL = *server
	if cfg.ProjectID == "" {
		fmt.Fprintln(os.Stderr, "a project handle is required (-project or AGENT_PROJECT_ID)")
		os.Exit(1)
	}

	store := session.NewStore(cfg.ProjectID, logger)
	defer store.Close()

	if cfg.Transcript.Enabled {
		rec, err := transcript.NewRecorder(cfg.Transcript.DBPath, cfg.Transcript.QueueSize, logger)
		if err != nil {
			logger.Error("Failed to open transcript recorder", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := rec.Close(); closeErr != nil {
				logger.Warn("failed to close transcript recorder", "error", closeErr)
			}
		}()
		store.SetRecorder(rec)
	}

	store.SetObserver(render(store))

	mgr, err := session.NewManager(cfg.ServerURL, cfg.ProjectID, store, session.ManagerConfig{
		HeartbeatTimeout:   cfg.HeartbeatTimeout,
		ReconnectDelay:     cfg.ReconnectDelay,
		FastReconnectDelay: cfg.FastReconnectDelay,
		DialTimeout:        cfg.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	mgr.Connect()
	fmt.Printf("connecting to %s (project %s)\n", cfg.ServerURL, cfg.ProjectID)
	fmt.Println("type a message and press enter; /stop interrupts, /status shows state, /quit exits")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readInput(ctx, stop, store)

	<-ctx.Done()
	fmt.Println("\nbye")
}

func readInput(ctx context.Context, stop context.CancelFunc, store *session.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			stop()
			return
		case line == "/stop":
			if err := store.Stop(ctx); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case line == "/status":
			printStatus(store)
		default:
			if err := store.SendTurn(ctx, line, nil, nil); err != nil {
				if errors.Is(err, session.ErrNotConnected) {
					fmt.Println("! not connected yet, message not sent")
				} else {
					fmt.Printf("! %v\n", err)
				}
			}
		}
	}
	stop()
}

func printStatus(store *session.Store) {
	fmt.Printf("status=%s connected=%t messages=%d steps=%d\n",
		store.Status(), store.Connected(), len(store.Messages()), len(store.Steps()))
	if ports := store.Ports(); len(ports) > 0 {
		keys := make([]string, 0, len(ports))
		for k := range ports {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  port %s -> %d\n", k, ports[k])
		}
	}
}

// render prints inbound activity as it is applied to the store.
func render(store *session.Store) func(*protocol.Message) {
	return func(msg *protocol.Message) {
		switch msg.Type {
		case protocol.TypeConnected:
			fmt.Printf("* connected (project %s, %d ports)\n", msg.ProjectID, len(msg.Ports))
		case protocol.TypePortsUpdate:
			fmt.Printf("* ports updated (%d mapped)\n", len(msg.Ports))
		case protocol.TypeAgentStep:
			switch msg.StepType {
			case protocol.StepThinking:
				fmt.Printf("  [thinking] %s\n", store.LiveAssistantContent())
			case protocol.StepToolCall:
				fmt.Printf("  [tool] %s\n", msg.ToolName)
			case protocol.StepToolResult:
				ok := msg.ToolResult != nil && msg.ToolResult.Success
				fmt.Printf("  [tool] %s done (success=%t)\n", msg.ToolName, ok)
			case protocol.StepLLMText:
				fmt.Printf("  [agent] %s\n", msg.Content)
			}
		case protocol.TypeAgentStreamChunk:
			fmt.Print(msg.Content)
		case protocol.TypeAgentResponse:
			fmt.Printf("\nagent> %s\n", msg.Content)
		case protocol.TypeAgentStopped:
			fmt.Printf("* %s\n", msg.Content)
		case protocol.TypeError:
			fmt.Printf("! agent error: %s\n", msg.Content)
		}
	}
}
