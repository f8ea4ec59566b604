package cmd

import (
	"fmt"

	"github.com/bnema/waydmabuf/internal/config"
	"github.com/bnema/waydmabuf/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "waydmabuf",
		Short: "waydmabuf - Wayland DMA-BUF frame capture",
		Long: `waydmabuf captures single frames from a Wayland output through the
wlr-export-dmabuf protocol. The compositor hands over the frame as DMA-BUF
file descriptors together with its size, format and modifier.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/waydmabuf/waydmabuf.toml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.String("display", "", "Wayland display name or socket path (default $WAYLAND_DISPLAY)")
	flags.String("format", config.FormatText, "Output format: text or json")
}

// flagKeys maps config keys to the flags overriding them
var flagKeys = map[string]string{
	"display.name":           "display",
	"output.format":          "format",
	"capture.overlay_cursor": "overlay-cursor",
	"capture.max_roundtrips": "max-roundtrips",
}

// bindFlags lets the flags of the running command override config values
func bindFlags(cmd *cobra.Command) error {
	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// initConfig loads configuration before any subcommand runs
func initConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	config.SetConfigPath(cfgFile)
	if err := config.Init(); err != nil {
		return err
	}

	cfg := config.Get()
	switch {
	case verbose:
		logger.SetLevel("debug")
	case cfg.Logging.LogLevel != "":
		logger.SetLevel(cfg.Logging.LogLevel)
	}

	logger.Debug("configuration loaded", "path", config.GetConfigPath())
	return nil
}
