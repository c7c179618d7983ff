package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"plantbot/internal/agent"
	"plantbot/internal/channel"
	"plantbot/internal/config"
	"plantbot/internal/profile"
	"plantbot/internal/provider"

	"github.com/spf13/cobra"
)

func identifyCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "identify <image>",
		Short: "Identify the plant in a local image file",
		Long:  "Runs the same prompt and formatting as the bot on a local image and prints the reply.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			if providerName != "" {
				cfg.General.DefaultProvider = providerName
			}
			if err := config.RequireSecrets(cfg, false); err != nil {
				return err
			}

			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			prof, err := profile.Load(cfg.General.ProfilePath, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			vision, err := provider.NewFactory(cfg, logger).Build(ctx, "")
			if err != nil {
				return fmt.Errorf("vision provider: %w", err)
			}
			if c, ok := vision.(io.Closer); ok {
				defer c.Close()
			}

			pipeline := agent.NewPipeline(agent.PipelineConfig{
				Provider: vision,
				Profile:  prof,
				Logger:   logger,
			})
			return printReply(ctx, cmd.OutOrStdout(), pipeline, image)
		},
	}

	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "vision provider (default: general.defaultProvider)")
	return cmd
}

func printReply(ctx context.Context, w io.Writer, id channel.Identifier, image []byte) error {
	reply, err := id.Identify(ctx, image)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, reply.Text)
	return err
}
