// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command relay is the headless tool-execution proxy: it takes a streamed
// model response, executes any embedded tool-call batch under the command
// safety policy, and posts the results back to the remote endpoint.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-relay/internal/config"
	"github.com/jeranaias/rigrun-relay/internal/continuation"
	"github.com/jeranaias/rigrun-relay/internal/kvstore"
	"github.com/jeranaias/rigrun-relay/internal/proxy"
	"github.com/jeranaias/rigrun-relay/internal/safety"
	"github.com/jeranaias/rigrun-relay/internal/sandbox"
	"github.com/jeranaias/rigrun-relay/internal/tools"
)

var (
	flagWorkDir string
	flagSession string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Tool-execution proxy for remote coding sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagWorkDir, "workdir", "w", ".", "working directory tool paths resolve against")
	root.PersistentFlags().StringVarP(&flagSession, "session", "s", "", "session id (generated if empty)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newToolsCmd())
	return root
}

// setupLogger configures logrus from config.
func setupLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// openStore picks the configured persistence backend.
func openStore(cfg *config.Config) (kvstore.Store, error) {
	if cfg.Storage.Path == "memory" {
		return kvstore.NewMemory(), nil
	}
	path := cfg.Storage.Path
	if path == "" {
		p, err := config.DefaultStorePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return kvstore.OpenSQLite(path)
}

// buildExecContext assembles the per-session environment.
func buildExecContext(cfg *config.Config, log *logrus.Logger, store kvstore.Store, sessionID string) tools.ExecContext {
	var opts []sandbox.Option
	if cfg.Sandbox.BaseURL != "" {
		opts = append(opts, sandbox.WithBaseURL(cfg.Sandbox.BaseURL))
	}
	return tools.ExecContext{
		WorkDir:   flagWorkDir,
		SessionID: sessionID,
		Log:       log.WithField("session_id", sessionID),
		Store:     store,
		Sandbox:   sandbox.New(cfg.Sandbox.APIKey, log, opts...),
	}
}

// applySafetyConfig extends the built-in policy from config.
func applySafetyConfig(cfg *config.Config) error {
	if len(cfg.Safety.AllowedCommands) == 0 && len(cfg.Safety.BlockedPatterns) == 0 {
		return nil
	}
	return safety.Extend(cfg.Safety.AllowedCommands, cfg.Safety.BlockedPatterns)
}

func newRunCmd() *cobra.Command {
	var inputFile string
	var originalMessage string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a model response: execute embedded tool calls and post results",
		Long: `Reads a streamed model response from stdin (or --input), extracts any
embedded tool-call batch, executes it, and posts the results to the
configured remote endpoint. The cleaned response text is printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applySafetyConfig(cfg); err != nil {
				return err
			}
			log := setupLogger(cfg)

			// Tool batches can run for minutes; pick up allowlist and
			// blocklist edits made while one is in flight.
			watcher, err := config.NewWatcher(func(updated *config.Config) {
				if err := applySafetyConfig(updated); err != nil {
					log.WithError(err).Warn("updated safety config rejected, keeping previous policy")
				}
			}, log)
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Watch(); err != nil {
				log.WithError(err).Debug("config watching unavailable")
			}

			var reader io.Reader = cmd.InOrStdin()
			if inputFile != "" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				reader = f
			}
			responseText, err := io.ReadAll(reader)
			if err != nil {
				return fmt.Errorf("failed to read response text: %w", err)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID := flagSession
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ec := buildExecContext(cfg, log, store, sessionID)
			client := continuation.NewClient(
				cfg.Remote.Endpoint,
				cfg.Remote.APIKey,
				log,
				continuation.WithTimeout(cfg.Remote.Timeout()),
			)
			handler := continuation.NewHandler(proxy.New(ec), client, log)

			flow, err := handler.HandleToolCallFlow(cmd.Context(), string(responseText), originalMessage)
			if flow != nil && flow.CleanedResponse != "" {
				fmt.Fprint(cmd.OutOrStdout(), flow.CleanedResponse)
			}
			if err != nil {
				return err
			}
			if flow.NeedsContinuation {
				log.WithField("results", len(flow.Results)).Info("continuation delivered")
				if flow.ContinuationResponse != "" {
					fmt.Fprint(cmd.OutOrStdout(), flow.ContinuationResponse)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "read the response text from a file instead of stdin")
	cmd.Flags().StringVarP(&originalMessage, "original-message", "m", "", "original user message to echo in the continuation")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <command...>",
		Short: "Evaluate a shell command against the safety policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applySafetyConfig(cfg); err != nil {
				return err
			}
			command := strings.Join(args, " ")
			verdict := safety.Evaluate(command)
			if verdict.Safe {
				fmt.Fprintf(cmd.OutOrStdout(), "allow: %s\n", command)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deny: %s\n", verdict.Reason)
			os.Exit(1)
			return nil
		},
	}
}

func newContextCmd() *cobra.Command {
	var includeHistory bool

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the stored work context for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := setupLogger(cfg)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ec := buildExecContext(cfg, log, store, flagSession)
			out, err := tools.ExecGetWorkContext(cmd.Context(), ec, tools.GetWorkContextParams{
				IncludeHistory: includeHistory,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeHistory, "history", false, "include recent work context history")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools this relay can execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(tools.Names()))
			for _, n := range tools.Names() {
				names = append(names, string(n))
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
