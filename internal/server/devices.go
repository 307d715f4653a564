//go:build linux

package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/internal/events"
	"github.com/tiagocoutinho/linuxgo/internal/metrics"
	"github.com/tiagocoutinho/linuxgo/v4l2"
)

// DeviceInfo describes one video node.
type DeviceInfo struct {
	Path      string `json:"path" example:"/dev/video0" doc:"Device node path"`
	Driver    string `json:"driver" example:"uvcvideo" doc:"Kernel driver name"`
	Card      string `json:"card" example:"HD Webcam C920" doc:"Device name"`
	BusInfo   string `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Streaming bool   `json:"streaming" doc:"Supports memory-mapped streaming I/O"`
	ReadWrite bool   `json:"read_write" doc:"Supports read() I/O"`
	Capture   bool   `json:"capture" doc:"Is a video capture device"`
}

// DeviceListResponse lists video devices.
type DeviceListResponse struct {
	Body struct {
		Devices []DeviceInfo `json:"devices" doc:"Available video devices"`
		Count   int          `json:"count" doc:"Number of devices"`
	}
}

// FormatInfo describes one supported format.
type FormatInfo struct {
	PixelFormat string   `json:"pixel_format" example:"YUYV" doc:"Four-character format code"`
	Description string   `json:"description" example:"YUYV 4:2:2" doc:"Driver format description"`
	Sizes       []string `json:"sizes,omitempty" example:"[\"640x480\"]" doc:"Discrete frame sizes"`
}

// DeviceFormatsResponse lists a device's formats.
type DeviceFormatsResponse struct {
	Body struct {
		Path    string       `json:"path" doc:"Device node path"`
		Formats []FormatInfo `json:"formats" doc:"Supported capture formats"`
	}
}

// DeviceStatsResponse carries per-device stream counters.
type DeviceStatsResponse struct {
	Body struct {
		Path       string  `json:"path" doc:"Device node path"`
		Running    bool    `json:"running" doc:"A stream is currently active"`
		Frames     uint64  `json:"frames" doc:"Frames dequeued since start"`
		Bytes      uint64  `json:"bytes" doc:"Payload bytes dequeued since start"`
		LastWaitMs float64 `json:"last_wait_ms" doc:"Wait time for the most recent frame"`
	}
}

// SnapshotRequest selects the snapshot source and format.
type SnapshotRequest struct {
	Name string `path:"name" example:"video0" doc:"Device node name under /dev"`
	Body struct {
		PixelFormat string `json:"pixel_format,omitempty" example:"MJPG" doc:"Requested pixel format (default MJPG)"`
		Width       uint32 `json:"width,omitempty" example:"1280" doc:"Requested frame width"`
		Height      uint32 `json:"height,omitempty" example:"720" doc:"Requested frame height"`
	}
}

// SnapshotResponse carries one captured frame.
type SnapshotResponse struct {
	Body struct {
		Path        string `json:"path" doc:"Device node path"`
		PixelFormat string `json:"pixel_format" doc:"Negotiated pixel format"`
		Width       uint32 `json:"width" doc:"Negotiated frame width"`
		Height      uint32 `json:"height" doc:"Negotiated frame height"`
		FrameData   string `json:"frame_data" doc:"Base64-encoded frame payload"`
		Timestamp   string `json:"timestamp" doc:"Capture timestamp"`
	}
}

// listVideoDevices scans the dev directory for video nodes and queries each.
func (s *Server) listVideoDevices() []DeviceInfo {
	entries, err := os.ReadDir(s.options.DevDir)
	if err != nil {
		s.logger.Warn("Device scan failed", "dir", s.options.DevDir, "error", err)
		return nil
	}
	var out []DeviceInfo
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "video") {
			continue
		}
		path := filepath.Join(s.options.DevDir, e.Name())
		d, err := v4l2.Open(path)
		if err != nil {
			s.logger.Debug("Skipping device", "path", path, "error", err)
			continue
		}
		caps := d.Capability()
		out = append(out, DeviceInfo{
			Path:      path,
			Driver:    caps.Driver,
			Card:      caps.Card,
			BusInfo:   caps.BusInfo,
			Streaming: d.SupportsStreaming(),
			ReadWrite: d.SupportsReadWrite(),
			Capture:   caps.Effective().Has(v4l2.CapVideoCapture),
		})
		d.Close()
	}
	return out
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Video Devices",
		Tags:        []string{"devices"},
	}, func(ctx context.Context, input *struct{}) (*DeviceListResponse, error) {
		resp := &DeviceListResponse{}
		resp.Body.Devices = s.listVideoDevices()
		resp.Body.Count = len(resp.Body.Devices)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{name}/formats",
		Summary:     "List Device Formats",
		Tags:        []string{"devices"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"video0" doc:"Device node name under /dev"`
	}) (*DeviceFormatsResponse, error) {
		path := filepath.Join(s.options.DevDir, input.Name)
		d, err := v4l2.Open(path)
		if err != nil {
			return nil, huma.Error404NotFound("Device not found", err)
		}
		defer d.Close()

		descs, err := d.EnumFormats(v4l2.BufTypeVideoCapture)
		if err != nil {
			return nil, huma.Error500InternalServerError("Format enumeration failed", err)
		}

		resp := &DeviceFormatsResponse{}
		resp.Body.Path = path
		for _, desc := range descs {
			info := FormatInfo{
				PixelFormat: desc.PixelFormat.String(),
				Description: desc.Description,
			}
			if sizes, err := d.EnumFrameSizes(desc.PixelFormat); err == nil {
				for _, sz := range sizes {
					info.Sizes = append(info.Sizes, sz.String())
				}
			}
			resp.Body.Formats = append(resp.Body.Formats, info)
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-stats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{name}/stats",
		Summary:     "Device Stream Counters",
		Tags:        []string{"devices"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name" example:"video0" doc:"Device node name under /dev"`
	}) (*DeviceStatsResponse, error) {
		path := filepath.Join(s.options.DevDir, input.Name)
		snap := metrics.Snapshot(path)
		if snap == nil {
			return nil, huma.Error404NotFound("No stream activity recorded for device")
		}
		resp := &DeviceStatsResponse{}
		resp.Body.Path = path
		resp.Body.Running = snap.Running
		resp.Body.Frames = snap.Frames
		resp.Body.Bytes = snap.Bytes
		resp.Body.LastWaitMs = float64(snap.LastWait) / float64(time.Millisecond)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "snapshot",
		Method:      http.MethodPost,
		Path:        "/api/devices/{name}/snapshot",
		Summary:     "Capture Snapshot",
		Description: "Negotiate a format, stream one frame and return it base64-encoded.",
		Tags:        []string{"devices"},
		Errors:      []int{404, 422, 500},
	}, func(ctx context.Context, input *SnapshotRequest) (*SnapshotResponse, error) {
		path := filepath.Join(s.options.DevDir, input.Name)
		frame, format, err := s.captureFrame(path, input)
		if err != nil {
			switch {
			case errors.Is(err, device.ErrNotFound), errors.Is(err, device.ErrPermission):
				return nil, huma.Error404NotFound("Device not available", err)
			case errors.Is(err, device.ErrUnsupportedFormat):
				return nil, huma.Error422UnprocessableEntity("Format not supported", err)
			default:
				return nil, huma.Error500InternalServerError("Capture failed", err)
			}
		}

		resp := &SnapshotResponse{}
		resp.Body.Path = path
		resp.Body.PixelFormat = format.PixelFormat.String()
		resp.Body.Width = format.Width
		resp.Body.Height = format.Height
		resp.Body.FrameData = base64.StdEncoding.EncodeToString(frame)
		resp.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
		return resp, nil
	})
}

// captureFrame opens the device, negotiates the requested format and pulls
// a single frame.
func (s *Server) captureFrame(path string, input *SnapshotRequest) (data []byte, format v4l2.Format, err error) {
	if bus := s.options.EventBus; bus != nil {
		defer func() {
			if err != nil {
				bus.Publish(events.StreamErrorEvent{
					DevicePath: path,
					Error:      err.Error(),
					Timestamp:  time.Now().UTC().Format(time.RFC3339),
				})
			}
		}()
	}

	d, err := v4l2.Open(path)
	if err != nil {
		return nil, v4l2.Format{}, err
	}
	defer d.Close()

	want := v4l2.Format{
		PixelFormat: v4l2.PixelFormatMJPEG,
		Width:       1280,
		Height:      720,
	}
	if input.Body.PixelFormat != "" {
		pf, err := v4l2.ParsePixelFormat(input.Body.PixelFormat)
		if err != nil {
			return nil, v4l2.Format{}, err
		}
		want.PixelFormat = pf
	}
	if input.Body.Width != 0 {
		want.Width = input.Body.Width
	}
	if input.Body.Height != 0 {
		want.Height = input.Body.Height
	}

	var rec metrics.Recorder
	stream := v4l2.NewStream(d, v4l2.BufTypeVideoCapture,
		v4l2.WithBufferCount(2),
		v4l2.WithStats(&rec),
		v4l2.WithDequeueTimeout(5*time.Second))
	format, err = stream.SetFormat(want)
	if err != nil {
		return nil, v4l2.Format{}, err
	}
	if err := stream.Start(); err != nil {
		return nil, v4l2.Format{}, err
	}
	defer stream.Stop()

	if bus := s.options.EventBus; bus != nil {
		bus.Publish(events.StreamStartedEvent{
			DevicePath:  path,
			PixelFormat: format.PixelFormat.String(),
			Width:       format.Width,
			Height:      format.Height,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		})
		defer func() {
			bus.Publish(events.StreamStoppedEvent{
				DevicePath: path,
				Frames:     1,
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			})
		}()
	}

	frame, err := stream.Next()
	if err != nil {
		return nil, v4l2.Format{}, err
	}
	return frame.Copy(), format, nil
}
