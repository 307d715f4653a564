//go:build linux

package midi

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// DefaultPath is the ALSA sequencer device node.
const DefaultPath = "/dev/snd/seq"

// Ioctl routing goes through a var so tests can stand in a fake kernel.
var control = func(h *device.Handle, req uint32, arg []byte) error {
	return h.Control(req, arg)
}

// Sequencer is an open ALSA sequencer client. Events move over the device's
// plain read/write path in fixed 28-byte records.
type Sequencer struct {
	h        *device.Handle
	clientID int32
	version  uint32
	ports    []uint8
}

// Open connects to the sequencer and queries the protocol version and the
// client id the kernel assigned.
func Open(path string, opts ...device.Option) (*Sequencer, error) {
	h, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	s, err := FromHandle(h)
	if err != nil {
		h.Close()
		return nil, err
	}
	return s, nil
}

// FromHandle wraps an existing handle. The sequencer owns it afterwards.
func FromHandle(h *device.Handle) (*Sequencer, error) {
	s := &Sequencer{h: h}
	raw := make([]byte, 4)
	if err := control(h, seqPVersion, raw); err != nil {
		return nil, fmt.Errorf("protocol version: %w", err)
	}
	s.version = layout.NativeEndian.Uint32(raw)
	if err := control(h, seqClientID, raw); err != nil {
		return nil, fmt.Errorf("client id: %w", err)
	}
	s.clientID = int32(layout.NativeEndian.Uint32(raw))
	return s, nil
}

// ClientID returns the id the kernel assigned to this client.
func (s *Sequencer) ClientID() int32 { return s.clientID }

// Version returns the sequencer protocol version as "major.minor.tiny".
func (s *Sequencer) Version() string { return versionString(s.version) }

// Close releases the client; the kernel tears down its ports.
func (s *Sequencer) Close() error { return s.h.Close() }

// ClientInfo queries this client's info record.
func (s *Sequencer) ClientInfo() (ClientInfo, error) {
	ci := ClientInfo{Client: s.clientID}
	raw, err := ci.MarshalBinary()
	if err != nil {
		return ClientInfo{}, err
	}
	if err := control(s.h, seqGetClientInfo, raw); err != nil {
		return ClientInfo{}, fmt.Errorf("client info: %w", err)
	}
	if err := ci.UnmarshalBinary(raw); err != nil {
		return ClientInfo{}, err
	}
	return ci, nil
}

// SetName renames this client.
func (s *Sequencer) SetName(name string) error {
	ci, err := s.ClientInfo()
	if err != nil {
		return err
	}
	ci.Name = name
	raw, err := ci.MarshalBinary()
	if err != nil {
		return err
	}
	if err := control(s.h, seqSetClientInfo, raw); err != nil {
		return fmt.Errorf("set client info: %w", err)
	}
	return nil
}

// CreatePort creates a port on this client and returns its address.
func (s *Sequencer) CreatePort(name string, caps PortCap, typ PortType) (Addr, error) {
	pi := PortInfo{
		Addr:         Addr{Client: uint8(s.clientID)},
		Name:         name,
		Capability:   caps,
		Type:         typ,
		MidiChannels: 16,
	}
	raw, err := pi.MarshalBinary()
	if err != nil {
		return Addr{}, err
	}
	if err := control(s.h, seqCreatePort, raw); err != nil {
		return Addr{}, fmt.Errorf("create port: %w", err)
	}
	if err := pi.UnmarshalBinary(raw); err != nil {
		return Addr{}, err
	}
	s.ports = append(s.ports, pi.Addr.Port)
	return pi.Addr, nil
}

// DeletePort removes a port created by this client.
func (s *Sequencer) DeletePort(addr Addr) error {
	pi := PortInfo{Addr: addr}
	raw, err := pi.MarshalBinary()
	if err != nil {
		return err
	}
	if err := control(s.h, seqDeletePort, raw); err != nil {
		return fmt.Errorf("delete port: %w", err)
	}
	for i, p := range s.ports {
		if p == addr.Port {
			s.ports = append(s.ports[:i], s.ports[i+1:]...)
			break
		}
	}
	return nil
}

// ReadEvent waits for and returns one event. A zero timeout waits
// indefinitely; closing the sequencer unblocks the wait with ErrStopped.
func (s *Sequencer) ReadEvent(timeout time.Duration) (Event, error) {
	raw := make([]byte, eventSize)
	n, err := s.h.ReadTimeout(raw, timeout)
	if err != nil {
		return Event{}, err
	}
	if n != eventSize {
		return Event{}, fmt.Errorf("short event read of %d bytes: %w", n, device.ErrResource)
	}
	var ev Event
	if err := ev.UnmarshalBinary(raw); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// WriteEvent sends one event, stamping the source client.
func (s *Sequencer) WriteEvent(ev Event) error {
	if ev.Source.Client == 0 {
		ev.Source.Client = uint8(s.clientID)
	}
	raw, err := ev.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := s.h.Write(raw)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if n != eventSize {
		return fmt.Errorf("short event write of %d bytes: %w", n, device.ErrResource)
	}
	return nil
}

// Events returns the lazy event sequence; it ends normally when the
// sequencer closes.
func (s *Sequencer) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.ReadEvent(0)
			if err != nil {
				if errors.Is(err, device.ErrStopped) || errors.Is(err, device.ErrClosed) {
					return
				}
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
