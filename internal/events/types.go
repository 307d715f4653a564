package events

// Event type constants for kelindar/event.
const (
	TypeDeviceAdded uint32 = iota + 1
	TypeDeviceRemoved
	TypeStreamStarted
	TypeStreamStopped
	TypeStreamError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceAddedEvent is published when a device node appears under /dev.
type DeviceAddedEvent struct {
	Path      string `json:"path" example:"/dev/video0" doc:"Device node path"`
	Class     string `json:"class" example:"video" doc:"Device class: video, gpio, input, midi"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceAddedEvent.
func (e DeviceAddedEvent) Type() uint32 { return TypeDeviceAdded }

// DeviceRemovedEvent is published when a device node disappears.
type DeviceRemovedEvent struct {
	Path      string `json:"path" example:"/dev/video0" doc:"Device node path"`
	Class     string `json:"class" example:"video" doc:"Device class: video, gpio, input, midi"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceRemovedEvent.
func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }

// StreamStartedEvent is published when a capture stream enters STREAMING.
type StreamStartedEvent struct {
	DevicePath  string `json:"device_path" example:"/dev/video0" doc:"Video device path"`
	PixelFormat string `json:"pixel_format" example:"YUYV" doc:"Negotiated pixel format"`
	Width       uint32 `json:"width" example:"1280" doc:"Negotiated frame width"`
	Height      uint32 `json:"height" example:"720" doc:"Negotiated frame height"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent is published when a capture stream stops.
type StreamStoppedEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Video device path"`
	Frames     uint64 `json:"frames" example:"1800" doc:"Frames delivered over the stream's lifetime"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// StreamErrorEvent is published when a stream fails outside normal stop.
type StreamErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Video device path"`
	Error      string `json:"error" example:"device unplugged" doc:"Failure description"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }
