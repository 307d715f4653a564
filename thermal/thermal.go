//go:build linux

// Package thermal reads the Linux sysfs thermal subsystem: zones with their
// trip points and cooling devices with their state range.
package thermal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultRoot is where the kernel registers thermal devices.
const DefaultRoot = "/sys/class/thermal"

// Zone is one thermal_zoneN entry. Temperatures are reported in
// millidegrees Celsius, as sysfs delivers them.
type Zone struct {
	dir string

	// Name is the sysfs entry name, e.g. "thermal_zone0".
	Name string
	// Type identifies the sensor, e.g. "x86_pkg_temp".
	Type string
}

// Trip is one trip point of a zone.
type Trip struct {
	Index int
	// Type is one of "passive", "active", "hot" or "critical".
	Type string
	// Temp is the trip temperature in millidegrees Celsius.
	Temp int
}

// CoolingDevice is one cooling_deviceN entry.
type CoolingDevice struct {
	dir string

	// Name is the sysfs entry name, e.g. "cooling_device0".
	Name string
	// Type identifies the device, e.g. "Processor" or "pwm-fan".
	Type string
}

// Zones lists the thermal zones under root, sorted by name.
func Zones(root string) ([]*Zone, error) {
	names, err := scan(root, "thermal_zone")
	if err != nil {
		return nil, fmt.Errorf("scan thermal zones: %w", err)
	}
	zones := make([]*Zone, 0, len(names))
	for _, name := range names {
		z := &Zone{dir: filepath.Join(root, name), Name: name}
		if z.Type, err = readStr(z.dir, "type"); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// CoolingDevices lists the cooling devices under root, sorted by name.
func CoolingDevices(root string) ([]*CoolingDevice, error) {
	names, err := scan(root, "cooling_device")
	if err != nil {
		return nil, fmt.Errorf("scan cooling devices: %w", err)
	}
	devs := make([]*CoolingDevice, 0, len(names))
	for _, name := range names {
		d := &CoolingDevice{dir: filepath.Join(root, name), Name: name}
		if d.Type, err = readStr(d.dir, "type"); err != nil {
			return nil, err
		}
		devs = append(devs, d)
	}
	return devs, nil
}

// scan returns entry names with the given prefix, sorted by their numeric
// suffix so zone 10 follows zone 9.
func scan(root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := strconv.Atoi(names[i][len(prefix):])
		b, _ := strconv.Atoi(names[j][len(prefix):])
		return a < b
	})
	return names, nil
}

// Temp reads the current temperature in millidegrees Celsius.
func (z *Zone) Temp() (int, error) {
	return readInt(z.dir, "temp")
}

// Celsius reads the current temperature in degrees.
func (z *Zone) Celsius() (float64, error) {
	milli, err := z.Temp()
	if err != nil {
		return 0, err
	}
	return float64(milli) / 1000, nil
}

// Trips lists the zone's trip points in index order.
func (z *Zone) Trips() ([]Trip, error) {
	var trips []Trip
	for i := 0; ; i++ {
		typ, err := readStr(z.dir, fmt.Sprintf("trip_point_%d_type", i))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		temp, err := readInt(z.dir, fmt.Sprintf("trip_point_%d_temp", i))
		if err != nil {
			return nil, err
		}
		trips = append(trips, Trip{Index: i, Type: typ, Temp: temp})
	}
	return trips, nil
}

// CurState reads the current cooling state.
func (d *CoolingDevice) CurState() (int, error) {
	return readInt(d.dir, "cur_state")
}

// MaxState reads the highest cooling state.
func (d *CoolingDevice) MaxState() (int, error) {
	return readInt(d.dir, "max_state")
}

// SetCurState writes the cooling state; the kernel rejects values above
// max_state.
func (d *CoolingDevice) SetCurState(v int) error {
	path := filepath.Join(d.dir, "cur_state")
	if err := os.WriteFile(path, []byte(strconv.Itoa(v)), 0644); err != nil {
		return fmt.Errorf("set cooling state: %w", err)
	}
	return nil
}

func readStr(dir, attr string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func readInt(dir, attr string) (int, error) {
	s, err := readStr(dir, attr)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", attr, err)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return v, nil
}
