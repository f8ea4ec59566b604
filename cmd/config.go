package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bnema/waydmabuf/internal/config"
	"github.com/bnema/waydmabuf/internal/logger"
	"github.com/bnema/waydmabuf/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage waydmabuf configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		if cfg.Output.Format == config.FormatJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		}

		display := cfg.Display.Name
		if display == "" {
			display = "$WAYLAND_DISPLAY"
		}
		level := cfg.Logging.LogLevel
		if level == "" {
			level = "$LOG_LEVEL"
		}

		lines := []string{
			ui.HeaderStyle.Render("Configuration"),
			ui.FormatField("file", config.GetConfigPath()),
			"",
			ui.SubtleStyle.Render("[display]"),
			ui.FormatField("name", display),
			ui.SubtleStyle.Render("[capture]"),
			ui.FormatField("cursor", fmt.Sprint(cfg.Capture.OverlayCursor)),
			ui.FormatField("roundtrips", fmt.Sprint(cfg.Capture.MaxRoundtrips)),
			ui.SubtleStyle.Render("[output]"),
			ui.FormatField("format", cfg.Output.Format),
			ui.SubtleStyle.Render("[logging]"),
			ui.FormatField("level", level),
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(out, l); err != nil {
				return err
			}
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
