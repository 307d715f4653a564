//go:build linux

// Package midi talks to the ALSA sequencer character device (/dev/snd/seq):
// client identity, port creation and the 28-byte sequencer event stream.
package midi

import (
	"fmt"

	"github.com/tiagocoutinho/linuxgo/ioctl"
	"github.com/tiagocoutinho/linuxgo/layout"
)

// Pinned sizes of the sequencer uapi layouts (64-bit generation).
const (
	clientInfoSize = 188
	portInfoSize   = 168
	eventSize      = 28
)

const seqMagic = 'S'

var (
	seqPVersion      = ioctl.IOR(seqMagic, 0x00, 4)
	seqClientID      = ioctl.IOR(seqMagic, 0x01, 4)
	seqGetClientInfo = ioctl.IOWR(seqMagic, 0x10, clientInfoSize)
	seqSetClientInfo = ioctl.IOW(seqMagic, 0x11, clientInfoSize)
	seqCreatePort    = ioctl.IOWR(seqMagic, 0x20, portInfoSize)
	seqDeletePort    = ioctl.IOW(seqMagic, 0x21, portInfoSize)
)

// Protocol version helpers; the kernel encodes major<<16 | minor<<8 | tiny.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>16, (v>>8)&0xff, v&0xff)
}

// EventType identifies a sequencer event (snd_seq_event_type).
type EventType uint8

const (
	EventNote       EventType = 5
	EventNoteOn     EventType = 6
	EventNoteOff    EventType = 7
	EventKeyPress   EventType = 8
	EventController EventType = 10
	EventPgmChange  EventType = 11
	EventChanPress  EventType = 12
	EventPitchBend  EventType = 13
)

func (t EventType) String() string {
	switch t {
	case EventNote:
		return "note"
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventKeyPress:
		return "key-press"
	case EventController:
		return "controller"
	case EventPgmChange:
		return "pgm-change"
	case EventChanPress:
		return "chan-press"
	case EventPitchBend:
		return "pitch-bend"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// Port capability flags (SNDRV_SEQ_PORT_CAP_*).
type PortCap = layout.Flags32

const (
	PortCapRead      PortCap = 1 << 0
	PortCapWrite     PortCap = 1 << 1
	PortCapDuplex    PortCap = 1 << 4
	PortCapSubsRead  PortCap = 1 << 5
	PortCapSubsWrite PortCap = 1 << 6
	PortCapNoExport  PortCap = 1 << 7
)

// Port type flags (SNDRV_SEQ_PORT_TYPE_*).
type PortType = layout.Flags32

const (
	PortTypeMidiGeneric PortType = 1 << 1
	PortTypeSynthesizer PortType = 1 << 18
	PortTypeApplication PortType = 1 << 20
)

// Addr is a sequencer address (snd_seq_addr): client and port number.
type Addr struct {
	Client uint8
	Port   uint8
}

func (a Addr) String() string { return fmt.Sprintf("%d:%d", a.Client, a.Port) }

// ClientInfo mirrors snd_seq_client_info (188 bytes): client i32@0 type
// i32@4 name[64]@8 filter u32@72 num_ports i32@116 event_lost i32@120
// card i32@124 pid i32@128. Filter bitmaps and reserved space are carried
// opaquely.
type ClientInfo struct {
	Client    int32
	Type      int32
	Name      string
	Filter    uint32
	NumPorts  int32
	EventLost int32
	Card      int32
	Pid       int32

	filters [40]byte
	tail    [56]byte
}

func (c *ClientInfo) MarshalBinary() ([]byte, error) {
	u := layout.New("snd_seq_client_info", clientInfoSize)
	u.PutI32(0, c.Client)
	u.PutI32(4, c.Type)
	u.PutStr(8, 64, c.Name)
	u.PutU32(72, c.Filter)
	u.PutField(76, len(c.filters), c.filters[:])
	u.PutI32(116, c.NumPorts)
	u.PutI32(120, c.EventLost)
	u.PutI32(124, c.Card)
	u.PutI32(128, c.Pid)
	u.PutField(132, len(c.tail), c.tail[:])
	return u.Bytes(), nil
}

func (c *ClientInfo) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("snd_seq_client_info", b, clientInfoSize)
	if err != nil {
		return err
	}
	c.Client = u.I32(0)
	c.Type = u.I32(4)
	c.Name = u.Str(8, 64)
	c.Filter = u.U32(72)
	u.CopyField(76, c.filters[:])
	c.NumPorts = u.I32(116)
	c.EventLost = u.I32(120)
	c.Card = u.I32(124)
	c.Pid = u.I32(128)
	u.CopyField(132, c.tail[:])
	return nil
}

// PortInfo mirrors snd_seq_port_info (168 bytes): addr@0 (2 bytes)
// name[64]@2 capability u32@68 type u32@72 midi_channels i32@76
// midi_voices i32@80 synth_voices i32@84 read_use i32@88 write_use i32@92
// kernel ptr@96 flags u32@104 time_queue u8@108 reserved[59]@109.
type PortInfo struct {
	Addr         Addr
	Name         string
	Capability   PortCap
	Type         PortType
	MidiChannels int32
	MidiVoices   int32
	SynthVoices  int32
	ReadUse      int32
	WriteUse     int32
	Flags        uint32
	TimeQueue    uint8

	kernel uint64
	tail   [59]byte
}

func (p *PortInfo) MarshalBinary() ([]byte, error) {
	u := layout.New("snd_seq_port_info", portInfoSize)
	u.PutU8(0, p.Addr.Client)
	u.PutU8(1, p.Addr.Port)
	u.PutStr(2, 64, p.Name)
	u.PutU32(68, uint32(p.Capability))
	u.PutU32(72, uint32(p.Type))
	u.PutI32(76, p.MidiChannels)
	u.PutI32(80, p.MidiVoices)
	u.PutI32(84, p.SynthVoices)
	u.PutI32(88, p.ReadUse)
	u.PutI32(92, p.WriteUse)
	u.PutU64(96, p.kernel)
	u.PutU32(104, p.Flags)
	u.PutU8(108, p.TimeQueue)
	u.PutField(109, len(p.tail), p.tail[:])
	return u.Bytes(), nil
}

func (p *PortInfo) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("snd_seq_port_info", b, portInfoSize)
	if err != nil {
		return err
	}
	p.Addr = Addr{Client: u.U8(0), Port: u.U8(1)}
	p.Name = u.Str(2, 64)
	p.Capability = PortCap(u.U32(68))
	p.Type = PortType(u.U32(72))
	p.MidiChannels = u.I32(76)
	p.MidiVoices = u.I32(80)
	p.SynthVoices = u.I32(84)
	p.ReadUse = u.I32(88)
	p.WriteUse = u.I32(92)
	p.kernel = u.U64(96)
	p.Flags = u.U32(104)
	p.TimeQueue = u.U8(108)
	u.CopyField(109, p.tail[:])
	return nil
}

// Event mirrors snd_seq_event (28 bytes): type u8@0 flags u8@1 tag i8@2
// queue u8@3 time@4 (8 bytes) source@12 dest@14 data@16 (12 bytes). The
// data union is decoded for note and control events; other payloads are
// carried raw.
type Event struct {
	Type   EventType
	Flags  uint8
	Tag    int8
	Queue  uint8
	Tick   uint32 // tick time; real-time events use the second time word too
	Source Addr
	Dest   Addr
	Data   [12]byte

	timeTail [4]byte
}

func (e *Event) MarshalBinary() ([]byte, error) {
	u := layout.New("snd_seq_event", eventSize)
	u.PutU8(0, uint8(e.Type))
	u.PutU8(1, e.Flags)
	u.PutU8(2, uint8(e.Tag))
	u.PutU8(3, e.Queue)
	u.PutU32(4, e.Tick)
	u.PutField(8, len(e.timeTail), e.timeTail[:])
	u.PutU8(12, e.Source.Client)
	u.PutU8(13, e.Source.Port)
	u.PutU8(14, e.Dest.Client)
	u.PutU8(15, e.Dest.Port)
	u.PutField(16, len(e.Data), e.Data[:])
	return u.Bytes(), nil
}

func (e *Event) UnmarshalBinary(b []byte) error {
	u, err := layout.Wrap("snd_seq_event", b, eventSize)
	if err != nil {
		return err
	}
	e.Type = EventType(u.U8(0))
	e.Flags = u.U8(1)
	e.Tag = int8(u.U8(2))
	e.Queue = u.U8(3)
	e.Tick = u.U32(4)
	u.CopyField(8, e.timeTail[:])
	e.Source = Addr{Client: u.U8(12), Port: u.U8(13)}
	e.Dest = Addr{Client: u.U8(14), Port: u.U8(15)}
	u.CopyField(16, e.Data[:])
	return nil
}

// Note reads the note payload: channel, note, velocity.
func (e *Event) Note() (channel, note, velocity uint8) {
	return e.Data[0], e.Data[1], e.Data[2]
}

// Control reads the control payload: channel, param, value.
func (e *Event) Control() (channel uint8, param uint32, value int32) {
	return e.Data[0],
		layout.NativeEndian.Uint32(e.Data[4:8]),
		int32(layout.NativeEndian.Uint32(e.Data[8:12]))
}

// NoteOn builds a note-on event.
func NoteOn(channel, note, velocity uint8) Event {
	e := Event{Type: EventNoteOn}
	e.Data[0], e.Data[1], e.Data[2] = channel, note, velocity
	return e
}

// NoteOff builds a note-off event.
func NoteOff(channel, note uint8) Event {
	e := Event{Type: EventNoteOff}
	e.Data[0], e.Data[1] = channel, note
	return e
}

// ControlChange builds a controller event.
func ControlChange(channel uint8, param uint32, value int32) Event {
	e := Event{Type: EventController}
	e.Data[0] = channel
	layout.NativeEndian.PutUint32(e.Data[4:8], param)
	layout.NativeEndian.PutUint32(e.Data[8:12], uint32(value))
	return e
}
