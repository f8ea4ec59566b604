package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bnema/waydmabuf/internal/capture"
	"github.com/bnema/waydmabuf/internal/config"
	"github.com/bnema/waydmabuf/internal/logger"
	"github.com/bnema/waydmabuf/internal/registry"
	"github.com/bnema/waydmabuf/internal/ui"
	"github.com/bnema/waydmabuf/internal/wayland"
	"github.com/spf13/cobra"
)

// FrameInfo is the JSON form of a captured frame
type FrameInfo struct {
	FrameID     uint32       `json:"frame_id"`
	Output      string       `json:"output,omitempty"`
	Width       uint32       `json:"width"`
	Height      uint32       `json:"height"`
	OffsetX     uint32       `json:"offset_x"`
	OffsetY     uint32       `json:"offset_y"`
	Format      string       `json:"format"`
	FourCC      uint32       `json:"fourcc"`
	Modifier    string       `json:"modifier"`
	BufferFlags uint32       `json:"buffer_flags"`
	Flags       uint32       `json:"flags"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Objects     []ObjectInfo `json:"objects"`
}

// ObjectInfo describes one DMA-BUF object of a frame
type ObjectInfo struct {
	Index      uint32 `json:"index"`
	Fd         int    `json:"fd"`
	Size       uint32 `json:"size"`
	Offset     uint32 `json:"offset"`
	Stride     uint32 `json:"stride"`
	PlaneIndex uint32 `json:"plane_index"`
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one frame from an output",
	Long: `Capture a single frame through wlr-export-dmabuf and print its metadata.

The most recently advertised export manager and wl_output are used. The
DMA-BUF descriptors are closed once the frame has been printed.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().Bool("overlay-cursor", config.DefaultConfig.Capture.OverlayCursor, "Composite the cursor into the frame")
	captureCmd.Flags().Int("max-roundtrips", config.DefaultConfig.Capture.MaxRoundtrips, "Round trips to wait for the frame before giving up")

	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, out, err := captureFrame(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("closing frame descriptors", "err", err)
		}
	}()

	return printFrame(cmd.OutOrStdout(), cfg.Output.Format, res, out.Info())
}

// selectGlobals picks the export manager and output a capture binds
func selectGlobals(globals *registry.Registry) (manager, output registry.Advertisement, err error) {
	manager, err = globals.ResolveLast(registry.ExportDmabufManagerInterface)
	if err != nil {
		return manager, output, fmt.Errorf("compositor does not support wlr-export-dmabuf: %w", err)
	}

	output, err = globals.ResolveLast(registry.OutputInterface)
	if err != nil {
		return manager, output, fmt.Errorf("no outputs advertised: %w", err)
	}

	return manager, output, nil
}

func captureFrame(ctx context.Context, client *wayland.Client, cfg *config.Config) (*capture.Result, *wayland.Output, error) {
	managerAd, outputAd, err := selectGlobals(client.Globals())
	if err != nil {
		return nil, nil, err
	}

	manager, err := client.BindExportManager(managerAd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind export manager: %w", err)
	}
	defer func() {
		if err := manager.Destroy(); err != nil {
			logger.Debug("destroying export manager", "err", err)
		}
	}()

	output, err := client.BindOutput(outputAd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind output: %w", err)
	}

	session, err := capture.NewSession(client, manager, output, capture.Options{
		OverlayCursor: cfg.Capture.OverlayCursor,
		MaxRoundtrips: cfg.Capture.MaxRoundtrips,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("capturing", "output", outputAd, "manager", managerAd, "overlay_cursor", cfg.Capture.OverlayCursor)

	res, err := session.CaptureFrame(ctx)
	if err != nil {
		var cerr *capture.CancelledError
		if errors.As(err, &cerr) && cerr.Transient() {
			return nil, nil, fmt.Errorf("%w (retry may succeed)", err)
		}
		return nil, nil, err
	}
	return res, output, nil
}

func newFrameInfo(res *capture.Result, out wayland.OutputInfo) FrameInfo {
	m := res.Metadata
	info := FrameInfo{
		FrameID:     res.FrameID,
		Output:      out.Connector,
		Width:       m.Width,
		Height:      m.Height,
		OffsetX:     m.OffsetX,
		OffsetY:     m.OffsetY,
		Format:      m.Format.String(),
		FourCC:      uint32(m.Format),
		Modifier:    fmt.Sprintf("0x%016x", uint64(m.Modifier)),
		BufferFlags: uint32(m.BufferFlags),
		Flags:       uint32(m.Flags),
		Objects:     make([]ObjectInfo, len(res.Objects)),
	}
	if !res.Timestamp.IsZero() {
		ts := res.Timestamp.UTC()
		info.Timestamp = &ts
	}

	for i, o := range res.Objects {
		info.Objects[i] = ObjectInfo{
			Index:      o.Index,
			Fd:         o.Handle.Fd(),
			Size:       o.Size,
			Offset:     o.Offset,
			Stride:     o.Stride,
			PlaneIndex: o.PlaneIndex,
		}
	}
	return info
}

func printFrame(w io.Writer, format string, res *capture.Result, out wayland.OutputInfo) error {
	if format == config.FormatJSON {
		return json.NewEncoder(w).Encode(newFrameInfo(res, out))
	}

	_, err := fmt.Fprintln(w, ui.RenderFrame(res))
	return err
}
