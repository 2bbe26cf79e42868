// Package main is the CLI entry point for regtriage.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/forenlab/regtriage/internal/config"
	"github.com/forenlab/regtriage/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "regtriage",
		Short: "Windows registry and event log forensic triage",
		Long: `regtriage enumerates Windows registry artifacts (system info, user
accounts, execution traces, persistence mechanisms) and EVTX/Sysmon
event logs, normalizes everything to a UTC-ordered timeline, and
writes evidence files with a hash manifest.

Works against the live registry on Windows, or against exported hive
files (SYSTEM, SOFTWARE, SAM, NTUSER.DAT) from any OS.`,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringP("config", "c", "regtriage.toml", "path to config file")
	rootCmd.Flags().String("hive-dir", "", "directory of exported registry hive files")
	rootCmd.Flags().StringArray("evtx", nil, "EVTX file or directory to parse (repeatable)")
	rootCmd.Flags().Bool("live", false, "read the live registry (Windows only)")
	rootCmd.Flags().String("only", "", "run specific collectors only (comma-separated, plus sam/evtx)")
	rootCmd.Flags().String("since", "", "ignore artifacts before this RFC 3339 time (UTC)")
	rootCmd.Flags().String("until", "", "ignore artifacts after this RFC 3339 time (UTC)")
	rootCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	rootCmd.Flags().String("format", "", "timeline format: jsonl, csv, or both")
	rootCmd.Flags().Bool("collect-only", false, "save evidence files without filtering or matching")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	hiveDir, _ := cmd.Flags().GetString("hive-dir")
	evtx, _ := cmd.Flags().GetStringArray("evtx")
	live, _ := cmd.Flags().GetBool("live")
	onlyStr, _ := cmd.Flags().GetString("only")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	collectOnly, _ := cmd.Flags().GetBool("collect-only")
	verbose, _ := cmd.Flags().GetBool("verbose")

	var only []string
	if onlyStr != "" {
		for _, s := range strings.Split(onlyStr, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				only = append(only, s)
			}
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Flags override the config file.
	if hiveDir != "" {
		cfg.Sources.HiveDir = hiveDir
		cfg.Sources.Live = false
	}
	if len(evtx) > 0 {
		cfg.Sources.EVTX = evtx
	}
	if live {
		cfg.Sources.Live = true
		cfg.Sources.HiveDir = ""
	}
	if since != "" {
		cfg.Window.Since = since
	}
	if until != "" {
		cfg.Window.Until = until
	}
	if output != "" {
		cfg.Output.Dir = output
	}
	if format != "" {
		cfg.Output.Format = strings.ToLower(format)
	}
	if err := cfg.Revalidate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	orch := orchestrator.New(cfg, orchestrator.Options{
		CollectOnly: collectOnly,
		Only:        only,
		Verbose:     verbose,
		Version:     fmt.Sprintf("%s (%s)", version, commit),
	})

	return orch.Run(cmd.Context())
}
