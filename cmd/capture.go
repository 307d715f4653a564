//go:build linux

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/backend"
	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/internal/logging"
	"github.com/tiagocoutinho/linuxgo/internal/metrics"
	"github.com/tiagocoutinho/linuxgo/v4l2"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var format string
	var width, height uint32
	var count int
	var output string
	var backendName string

	cmd := &cobra.Command{
		Use:   "capture [device]",
		Short: "Capture frames from a video device",
		Long: `Negotiates the requested format on a V4L2 capture device, streams the ` +
			`requested number of frames and writes each one to a numbered file.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("capture")

			be, err := backendFor(backendName)
			if err != nil {
				logger.Error("Bad backend", "error", err)
				os.Exit(1)
			}

			d, err := v4l2.Open(args[0], device.WithBackend(be))
			if err != nil {
				logger.Error("Failed to open device", "error", err)
				os.Exit(1)
			}
			defer d.Close()

			pf, err := v4l2.ParsePixelFormat(format)
			if err != nil {
				logger.Error("Bad pixel format", "format", format, "error", err)
				os.Exit(1)
			}

			var rec metrics.Recorder
			stream := v4l2.NewStream(d, v4l2.BufTypeVideoCapture,
				v4l2.WithStats(&rec),
				v4l2.WithDequeueTimeout(5*time.Second))
			negotiated, err := stream.SetFormat(v4l2.Format{
				PixelFormat: pf,
				Width:       width,
				Height:      height,
			})
			if err != nil {
				logger.Error("Format negotiation failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Capturing",
				"format", negotiated.PixelFormat,
				"size", fmt.Sprintf("%dx%d", negotiated.Width, negotiated.Height))

			if err := stream.Start(); err != nil {
				logger.Error("Stream start failed", "error", err)
				os.Exit(1)
			}
			defer stream.Stop()

			ext := strings.ToLower(strings.TrimSpace(pf.String()))
			for i := 0; i < count; i++ {
				frame, err := stream.Next()
				if err != nil {
					logger.Error("Frame dequeue failed", "error", err)
					os.Exit(1)
				}
				name := fmt.Sprintf("%s%04d.%s", output, i, ext)
				if err := os.WriteFile(name, frame.Bytes(), 0o644); err != nil {
					logger.Error("Write failed", "file", name, "error", err)
					os.Exit(1)
				}
				logger.Info("Frame written", "file", name, "bytes", frame.Len(), "sequence", frame.Sequence)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "MJPG", "Pixel format fourcc")
	cmd.Flags().Uint32Var(&width, "width", 1280, "Frame width")
	cmd.Flags().Uint32Var(&height, "height", 720, "Frame height")
	cmd.Flags().IntVar(&count, "count", 1, "Number of frames to capture")
	cmd.Flags().StringVar(&output, "output", "frame", "Output filename prefix")
	cmd.Flags().StringVar(&backendName, "backend", "blocking", "I/O backend (blocking, poller, goroutine)")

	return cmd
}

func backendFor(name string) (backend.Backend, error) {
	switch name {
	case "blocking":
		return backend.Blocking{}, nil
	case "poller":
		return backend.NewPoller()
	case "goroutine":
		return backend.Goroutine{}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
