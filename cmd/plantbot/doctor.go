package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"plantbot/internal/channel"
	"plantbot/internal/config"
	"plantbot/internal/profile"
	"plantbot/internal/provider"

	"github.com/spf13/cobra"
)

const doctorTimeout = 15 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your PlantBot installation",
		Long: `Verifies that PlantBot's configuration, credentials, bot profile, vision
provider and Telegram token are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Fprintf(out, "PlantBot Doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &doctorReport{out: out}

			// 1. Config file (optional)
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			// 3. Credentials
			if err := config.RequireSecrets(cfg, true); err != nil {
				r.fail("Credentials", err.Error())
			} else {
				r.pass("Credentials", "present")
			}

			// 4. Bot profile
			prof, err := profile.Load(cfg.General.ProfilePath, logger)
			if err != nil {
				r.fail("Bot profile", err.Error())
			} else {
				r.pass("Bot profile", fmt.Sprintf("%s (%d sections)", prof.Name, len(prof.Sections)))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			// 5. Vision provider reachable
			name := cfg.General.DefaultProvider
			if vision, err := provider.NewFactory(cfg, logger).Build(ctx, ""); err != nil {
				r.fail("Provider: "+name, err.Error())
			} else {
				if err := vision.Healthy(ctx); err != nil {
					r.fail("Provider: "+name, err.Error())
				} else {
					r.pass("Provider: "+name, "healthy")
				}
				if c, ok := vision.(io.Closer); ok {
					c.Close()
				}
			}

			// 6. Telegram token accepted
			if cfg.Telegram.Token != "" {
				tg := channel.NewTelegram(channel.TelegramConfig{
					Token:       cfg.Telegram.Token,
					APIEndpoint: cfg.Telegram.APIEndpoint,
					Client:      provider.SharedHTTPClient(doctorTimeout),
					Logger:      logger,
				})
				if err := tg.Connect(); err != nil {
					r.fail("Telegram", err.Error())
				} else {
					r.pass("Telegram", "@"+tg.Username())
				}
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					r.warn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
				} else {
					r.pass("Metrics addr", cfg.Metrics.Addr+" available")
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return r.summary()
		},
	}
}

type doctorReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *doctorReport) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Fprintf(r.out, "\nPlease fix the failed checks before running PlantBot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Fprintf(r.out, "\nPlantBot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(r.out, "\nAll checks passed! PlantBot is ready to run.\n")
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
