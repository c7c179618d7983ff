package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.plantbot.bot"
	systemdUnit  = "plantbot.service"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage PlantBot as a background service (launchd/systemd)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install a user service that runs 'plantbot run' at login",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			cfgPath := resolveConfigPath()
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}

			switch runtime.GOOS {
			case "darwin":
				logDir := filepath.Join(home, ".plantbot", "logs")
				if err := os.MkdirAll(logDir, 0o755); err != nil {
					return err
				}
				path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
				if err := writeServiceFile(path, renderLaunchd(execPath, cfgPath, logDir)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service installed: %s\nTo start: launchctl load %s\nTo stop:  launchctl unload %s\n", path, path, path)
			case "linux":
				path := filepath.Join(home, ".config", "systemd", "user", systemdUnit)
				if err := writeServiceFile(path, renderSystemd(execPath, cfgPath)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service installed: %s\nTo start:  systemctl --user start plantbot\nTo enable: systemctl --user enable plantbot\n", path)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the PlantBot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			var path string
			switch runtime.GOOS {
			case "darwin":
				path = filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
			case "linux":
				path = filepath.Join(home, ".config", "systemd", "user", systemdUnit)
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service uninstalled: %s\n", path)
			return nil
		},
	})

	return cmd
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func renderSystemd(execPath, cfgPath string) string {
	r := strings.NewReplacer("{{EXEC}}", execPath, "{{CONFIG}}", cfgPath)
	return r.Replace(systemdTemplate)
}

func renderLaunchd(execPath, cfgPath, logDir string) string {
	r := strings.NewReplacer(
		"{{LABEL}}", launchdLabel,
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LOG}}", filepath.Join(logDir, "plantbot.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "plantbot-error.log"),
	)
	return r.Replace(launchdTemplate)
}

const systemdTemplate = `[Unit]
Description=PlantBot Telegram plant identifier
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} run --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>run</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>
`
