package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexdrum/lexdrum/internal/api"
	"github.com/lexdrum/lexdrum/internal/chat"
	"github.com/lexdrum/lexdrum/internal/config"
	"github.com/lexdrum/lexdrum/internal/session"
	"github.com/lexdrum/lexdrum/internal/store"
	"github.com/lexdrum/lexdrum/internal/tui"
)

func main() {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "creating data dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "creating log dir: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, nil))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening local store: %v\n", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.APIBaseURL, nil, cfg.HTTPTimeout, logger)
	sessions := session.NewManager(st, client, logger)
	client.SetTokenSource(sessions)
	// Stale token anywhere means the session is over.
	client.SetOnUnauthorized(sessions.Logout)

	registry := chat.NewRegistry(client, st, logger)
	registry.SetGate(func() bool { return sessions.Current().SignedIn })

	app := tui.New(tui.Deps{
		Sessions: sessions,
		Client:   client,
		Registry: registry,
		Log:      logger,
	})

	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "lexdrum: %v\n", err)
		os.Exit(1)
	}
}
