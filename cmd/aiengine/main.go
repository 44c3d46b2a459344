// Package main is the entry point for the aiengine CLI.
// aiengine routes narrow AI capability calls across local and remote
// providers under privacy, rate-limit and kill-switch policy, with a
// deterministic fallback path when no provider can serve.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/itori-ai/aiengine/internal/audit"
	"github.com/itori-ai/aiengine/internal/config"
	"github.com/itori-ai/aiengine/internal/engine"
	"github.com/itori-ai/aiengine/internal/fallback"
	"github.com/itori-ai/aiengine/internal/logging"
	"github.com/itori-ai/aiengine/internal/policy"
	"github.com/itori-ai/aiengine/internal/port"
	"github.com/itori-ai/aiengine/internal/provider"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aiengine",
		Short: "aiengine - policy-governed AI capability router",
		Long: `aiengine exposes a fixed catalog of narrow AI capabilities (ports) and
routes each call across on-device, local and bring-your-own providers
under privacy, rate-limit and kill-switch policy. When no provider can
serve, a deterministic heuristic fallback answers instead.

Show routing status:   aiengine status
Run a port:            echo '{"text":"..."}' | aiengine exec summarize
List the catalog:      aiengine ports`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.aiengine/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aiengine v%s\n", version)
		},
	})

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(portsCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRING
// ═══════════════════════════════════════════════════════════════════════════════

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Console)
	return cfg, nil
}

func providerConfig(pc config.ProviderConfig) *provider.Config {
	return &provider.Config{
		Endpoint:  pc.Endpoint,
		APIKey:    pc.APIKey,
		Model:     pc.Model,
		ModelPath: pc.ModelPath,
		Timeout:   time.Duration(pc.TimeoutSec) * time.Second,
	}
}

// buildEngine wires config into a ready engine. The returned audit log is
// nil when auditing is off; the caller owns closing it.
func buildEngine(cfg *config.Config) (*engine.Engine, *audit.Log, error) {
	var providers []provider.Provider
	if cfg.Providers.OnDeviceFoundation.Enabled {
		providers = append(providers, provider.NewOnDeviceFoundation(providerConfig(cfg.Providers.OnDeviceFoundation)))
	}
	if cfg.Providers.LocalEmbedded.Enabled {
		providers = append(providers, provider.NewLocalEmbedded(providerConfig(cfg.Providers.LocalEmbedded)))
	}
	if cfg.Providers.BringYourOwn.Enabled {
		providers = append(providers, provider.NewBringYourOwn(providerConfig(cfg.Providers.BringYourOwn)))
	}

	var sink engine.AuditSink
	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		var err error
		auditLog, err = audit.Open(cfg.Audit.DataDir, logging.Component("audit"))
		if err != nil {
			return nil, nil, fmt.Errorf("open audit log: %w", err)
		}
		sink = auditLog
	}

	e := engine.New(engine.Options{
		Providers: providers,
		Settings:  policy.StaticSettings(cfg.Assist.Enabled),
		Fallback:  fallback.NewHeuristics(),
		RateLimiter: policy.NewRateLimiter(policy.RateLimitConfig{
			GlobalPerMinute:        cfg.RateLimit.GlobalPerMinute,
			PortPerMinute:          cfg.RateLimit.PortPerMinute,
			Burst:                  cfg.RateLimit.Burst,
			MaxConsecutiveFailures: cfg.RateLimit.MaxConsecutiveFailures,
		}),
		Capability: policy.NewCapability(cfg.DisabledPortIDs()),
		Audit:      sink,
		Logger:     logging.Component("engine"),
	})
	return e, auditLog, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which ports can serve right now, and through which providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, auditLog, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			if auditLog != nil {
				defer auditLog.Close()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			snap := e.Snapshot(ctx)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Println(titleStyle.Render("Capability Routing Status"))
			if !cfg.Assist.Enabled {
				fmt.Println(warnStyle.Render("assist disabled: deterministic fallbacks only"))
			}
			fmt.Println()

			for _, pa := range snap {
				var state string
				switch {
				case !pa.Available:
					state = failStyle.Render("✗ unavailable")
				case pa.FallbackOnly:
					state = warnStyle.Render("◦ fallback only")
				default:
					state = okStyle.Render("✓ available")
				}

				providers := "-"
				if len(pa.Providers) > 0 {
					names := make([]string, len(pa.Providers))
					for i, pid := range pa.Providers {
						names[i] = string(pid)
					}
					providers = strings.Join(names, ", ")
				}

				fmt.Printf("  %-22s %-18s %s\n", pa.Port, state, providers)
				if verbose && len(pa.Reasons) > 0 {
					fmt.Printf("  %s\n", subtleStyle.Render("    "+strings.Join(pa.Reasons, ", ")))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the snapshot as JSON")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// PORTS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the capability catalog",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(titleStyle.Render("Capability Catalog"))
			fmt.Println()
			for _, c := range port.Catalog() {
				fb := "deterministic fallback"
				if !c.SupportsDeterministicFallback {
					fb = subtleStyle.Render("no fallback")
				}
				fmt.Printf("  %-22s %-34s privacy=%-12s %s\n", c.ID, c.Name, c.Privacy, fb)
			}
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXEC COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func execCmd() *cobra.Command {
	var (
		privacy    string
		timeoutSec int
		showDiag   bool
	)

	cmd := &cobra.Command{
		Use:   "exec <port>",
		Short: "Execute one port with JSON input from stdin",
		Long: `Reads the port's JSON input from stdin, routes it through the engine,
and writes the JSON output to stdout. Routing diagnostics go to stderr
with --diag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := port.ID(args[0])
			if !id.Valid() {
				return fmt.Errorf("unknown port %q (see: aiengine ports)", args[0])
			}
			level, err := parsePrivacy(privacy)
			if err != nil {
				return err
			}

			input, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, auditLog, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			if auditLog != nil {
				defer auditLog.Close()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
			defer cancel()

			res, err := e.Execute(ctx, id, input, port.NewRequestContext(level))
			if err != nil {
				return err
			}

			if showDiag {
				diag, _ := json.Marshal(res.Diagnostic)
				fmt.Fprintln(os.Stderr, string(diag))
			}
			fmt.Println(string(res.Output))
			return nil
		},
	}

	cmd.Flags().StringVar(&privacy, "privacy", "normal", "privacy level: normal, sensitive, onDeviceOnly")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 60, "overall call timeout in seconds")
	cmd.Flags().BoolVar(&showDiag, "diag", false, "print routing diagnostics to stderr")
	return cmd
}

func parsePrivacy(s string) (port.PrivacyLevel, error) {
	switch s {
	case "", "normal":
		return port.PrivacyNormal, nil
	case "sensitive":
		return port.PrivacySensitive, nil
	case "onDeviceOnly":
		return port.PrivacyOnDeviceOnly, nil
	default:
		return "", fmt.Errorf("unknown privacy level %q", s)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// AUDIT COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func auditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent routing decisions from the local audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("auditing is disabled in config")
			}

			auditLog, err := audit.Open(cfg.Audit.DataDir, logging.Component("audit"))
			if err != nil {
				return err
			}
			defer auditLog.Close()

			entries, err := auditLog.Recent(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(subtleStyle.Render("no routing decisions recorded yet"))
				return nil
			}

			fmt.Println(titleStyle.Render("Recent Routing Decisions"))
			fmt.Println()
			for _, e := range entries {
				outcome := okStyle.Render("ok")
				if !e.Success {
					outcome = failStyle.Render(e.ErrorCode)
				}
				via := string(e.Provider)
				if e.FallbackUsed {
					via = "fallback"
				}
				fmt.Printf("  %-22s %-12s %-20s %4dms  %s\n",
					e.Port, outcome, via, e.LatencyMs, subtleStyle.Render(shortHash(e.InputHash)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// API keys never leave the process.
			shown := *cfg
			if shown.Providers.BringYourOwn.APIKey != "" {
				shown.Providers.BringYourOwn.APIKey = "****"
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(shown)
		},
	})

	return cmd
}
