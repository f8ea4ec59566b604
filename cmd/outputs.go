package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/waydmabuf/internal/config"
	"github.com/bnema/waydmabuf/internal/logger"
	"github.com/bnema/waydmabuf/internal/registry"
	"github.com/bnema/waydmabuf/internal/ui"
	"github.com/bnema/waydmabuf/internal/wayland"
	"github.com/spf13/cobra"
)

// OutputsInfo is the JSON form of the outputs listing
type OutputsInfo struct {
	ExportDmabuf        bool            `json:"export_dmabuf"`
	ExportDmabufVersion uint32          `json:"export_dmabuf_version,omitempty"`
	Outputs             []OutputDetails `json:"outputs"`
}

// OutputDetails represents a single advertised wl_output
type OutputDetails struct {
	Name        uint32 `json:"name"`
	Version     uint32 `json:"version"`
	Connector   string `json:"connector,omitempty"`
	Description string `json:"description,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	Width       int32  `json:"width"`
	Height      int32  `json:"height"`
	Refresh     int32  `json:"refresh_mhz"`
	Scale       int32  `json:"scale"`
	Selected    bool   `json:"selected"`
	Error       string `json:"error,omitempty"`
}

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List advertised outputs",
	Long: `List the wl_output globals of the compositor with their mode and name,
and mark the one capture would use.`,
	Args: cobra.NoArgs,
	RunE: runOutputs,
}

func init() {
	rootCmd.AddCommand(outputsCmd)
}

func runOutputs(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	client, err := wayland.Connect(cfg.Display.Name)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug("closing connection", "err", err)
		}
	}()

	info, err := describeOutputs(client)
	if err != nil {
		return err
	}
	return printOutputs(cmd.OutOrStdout(), cfg.Output.Format, info)
}

// describeOutputs binds every advertised output and waits one round trip
// for their geometry, mode and name.
func describeOutputs(client *wayland.Client) (OutputsInfo, error) {
	globals := client.Globals()
	info := OutputsInfo{}

	if m, err := globals.ResolveLast(registry.ExportDmabufManagerInterface); err == nil {
		info.ExportDmabuf = true
		info.ExportDmabufVersion = m.Version
	}

	ads := globals.ResolveAll(registry.OutputInterface)
	bound := make(map[uint32]*wayland.Output, len(ads))
	for i, a := range ads {
		d := OutputDetails{Name: a.Name, Version: a.Version, Selected: i == len(ads)-1}
		out, err := client.BindOutput(a)
		switch {
		case errors.Is(err, registry.ErrBindRejected):
			logger.Warn("skipping output", "global", a, "err", err)
			d.Error = err.Error()
		case err != nil:
			return info, err
		default:
			bound[a.Name] = out
		}
		info.Outputs = append(info.Outputs, d)
	}

	if len(bound) > 0 {
		if err := client.Roundtrip(); err != nil {
			return info, fmt.Errorf("failed to read output details: %w", err)
		}
	}

	for i := range info.Outputs {
		out, ok := bound[info.Outputs[i].Name]
		if !ok {
			continue
		}
		oi := out.Info()
		d := &info.Outputs[i]
		d.Connector = oi.Connector
		d.Description = oi.Description
		d.Make = oi.Make
		d.Model = oi.Model
		d.X, d.Y = oi.X, oi.Y
		d.Width, d.Height = oi.Width, oi.Height
		d.Refresh = oi.Refresh
		d.Scale = oi.Scale
	}

	return info, nil
}

func printOutputs(w io.Writer, format string, info OutputsInfo) error {
	if format == config.FormatJSON {
		if info.Outputs == nil {
			info.Outputs = []OutputDetails{}
		}
		return json.NewEncoder(w).Encode(info)
	}

	rows := make([]ui.OutputRow, len(info.Outputs))
	for i, d := range info.Outputs {
		rows[i] = ui.OutputRow{
			Name:        d.Name,
			Version:     d.Version,
			Connector:   d.Connector,
			Description: d.Description,
			Width:       d.Width,
			Height:      d.Height,
			Refresh:     d.Refresh,
			Selected:    d.Selected,
		}
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n",
		ui.RenderSupport(registry.ExportDmabufManagerInterface, info.ExportDmabufVersion, info.ExportDmabuf),
		ui.RenderOutputs(rows))
	return err
}
