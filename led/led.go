//go:build linux

// Package led exposes the Linux sysfs LED class: enumeration, brightness
// control and trigger selection.
package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel registers LED class devices.
const DefaultRoot = "/sys/class/leds"

// LED is one LED class device. Entry names follow the
// "device:color:function" convention; any of the three parts may be empty.
type LED struct {
	dir string

	// Name is the full sysfs entry name, e.g. "input3::capslock".
	Name string
	// Device, Color and Function are the parsed name parts.
	Device   string
	Color    string
	Function string
}

// Scan lists the LEDs registered under root, sorted by name.
func Scan(root string) ([]*LED, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan LEDs: %w", err)
	}
	leds := make([]*LED, 0, len(entries))
	for _, e := range entries {
		leds = append(leds, newLED(root, e.Name()))
	}
	sort.Slice(leds, func(i, j int) bool { return leds[i].Name < leds[j].Name })
	return leds, nil
}

// Open returns the LED with the given sysfs entry name.
func Open(root, name string) (*LED, error) {
	l := newLED(root, name)
	if _, err := os.Stat(l.dir); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s: %w", name, l.dir, err)
	}
	return l, nil
}

// newLED parses the entry name. The function is the part after the last
// colon and the color the part before it; everything earlier is the device.
func newLED(root, name string) *LED {
	l := &LED{dir: filepath.Join(root, name), Name: name}
	parts := strings.Split(name, ":")
	switch len(parts) {
	case 1:
		l.Function = parts[0]
	case 2:
		l.Color, l.Function = parts[0], parts[1]
	default:
		l.Device = strings.Join(parts[:len(parts)-2], ":")
		l.Color = parts[len(parts)-2]
		l.Function = parts[len(parts)-1]
	}
	return l
}

// Brightness reads the current brightness.
func (l *LED) Brightness() (int, error) {
	return l.readInt("brightness")
}

// MaxBrightness reads the brightness ceiling; for on/off LEDs this is 1.
func (l *LED) MaxBrightness() (int, error) {
	return l.readInt("max_brightness")
}

// SetBrightness writes the brightness. Writing a non-zero value to an LED
// with an active trigger also disables the trigger.
func (l *LED) SetBrightness(v int) error {
	if err := l.write("brightness", strconv.Itoa(v)); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

// On drives the LED at its maximum brightness.
func (l *LED) On() error {
	max, err := l.MaxBrightness()
	if err != nil {
		return err
	}
	return l.SetBrightness(max)
}

// Off turns the LED off.
func (l *LED) Off() error {
	return l.SetBrightness(0)
}

// Trigger reports the active trigger and all available ones. The kernel
// renders the active entry in brackets: "none rc-feedback [timer] oneshot".
func (l *LED) Trigger() (current string, available []string, err error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, "trigger"))
	if err != nil {
		return "", nil, fmt.Errorf("read LED trigger: %w", err)
	}
	for _, field := range strings.Fields(string(raw)) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			field = field[1 : len(field)-1]
			current = field
		}
		available = append(available, field)
	}
	return current, available, nil
}

// SetTrigger activates a trigger by name; "none" restores manual control.
func (l *LED) SetTrigger(name string) error {
	if err := l.write("trigger", name); err != nil {
		return fmt.Errorf("set LED trigger: %w", err)
	}
	return nil
}

func (l *LED) readInt(attr string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, attr))
	if err != nil {
		return 0, fmt.Errorf("read LED %s: %w", attr, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse LED %s: %w", attr, err)
	}
	return v, nil
}

func (l *LED) write(attr, value string) error {
	return os.WriteFile(filepath.Join(l.dir, attr), []byte(value), 0644)
}
