// Package main is the entry point for the replypass CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/config"
	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/engine"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/pkg/app"
	"github.com/replypass/replypass/pkg/reply"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "replypass",
		Short:         "Persona-driven reply suggestion engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Persistent data directory")
	root.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), generateCmd(), serviceCmd())
	return root
}

// runParams reads the persistent flags shared by every command.
func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	level, _ := cmd.Flags().GetString("log-level")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "replypass %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.Modules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start replypass with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), runParams(cmd))
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var printCfg bool
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			params.LogOutput = io.Discard

			rt, err := app.Setup(params)
			if err != nil {
				return err
			}
			defer rt.App.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(rt.Modules))
			for _, id := range rt.Modules {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if printCfg {
				return printConfig(out, rt.Config, rt.Redactor)
			}
			return nil
		},
	}
	check.Flags().BoolVar(&printCfg, "print", false, "Print the expanded configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config, redactor *security.Redactor) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	_, err = fmt.Fprintf(w, "\n%s", redactor.Redact(string(raw)))
	return err
}

func generateCmd() *cobra.Command {
	var (
		req        reply.Request
		regenerate bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate reply suggestions once and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Mode = reply.ModeInitial
			if regenerate {
				req.Mode = reply.ModeRegenerate
			}

			params := runParams(cmd)
			params.ExcludeNamespaces = []string{"gateway", "cron"}
			rt, err := app.Setup(params)
			if err != nil {
				return err
			}
			if err := rt.App.Start(); err != nil {
				return err
			}
			defer rt.App.Stop()

			eng, ok := core.ServiceAs[*engine.Engine](rt.Context, engine.ServiceName)
			if !ok {
				return errors.New("generate: engine.reply is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := eng.Generate(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Status != reply.StatusOK {
				return fmt.Errorf("generate: %s", res.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&req.CaseID, "case", "", "Case ID (required)")
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session ID (required)")
	cmd.Flags().StringVar(&req.Goal, "goal", "", "What the user wants to achieve with the reply")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Regenerate, excluding the previous suggestions")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
