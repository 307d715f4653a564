//go:build linux

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiagocoutinho/linuxgo/internal/metrics"
)

func writeSysfs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestServer(t *testing.T) (*Server, *Options) {
	t.Helper()
	opts := &Options{
		DevDir:      t.TempDir(),
		LEDRoot:     t.TempDir(),
		ThermalRoot: t.TempDir(),
	}
	return NewServer(opts), opts
}

func doJSON(t *testing.T, s *Server, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.GetMux().ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	rec := doJSON(t, s, http.MethodGet, "/api/health", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestListDevicesEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	var resp struct {
		Count int `json:"count"`
	}
	rec := doJSON(t, s, http.MethodGet, "/api/devices", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
}

func TestListLEDs(t *testing.T) {
	s, opts := newTestServer(t)
	writeSysfs(t, opts.LEDRoot, map[string]string{
		"input3::capslock/brightness":     "0\n",
		"input3::capslock/max_brightness": "1\n",
		"input3::capslock/trigger":        "[none] kbd-capslock\n",
		"ACT/brightness":                  "255\n",
		"ACT/max_brightness":              "255\n",
		"ACT/trigger":                     "none [mmc0] heartbeat\n",
	})

	var resp struct {
		Count int `json:"count"`
		LEDs  []struct {
			Name       string `json:"name"`
			Function   string `json:"function"`
			Brightness int    `json:"brightness"`
			Max        int    `json:"max_brightness"`
			Trigger    string `json:"trigger"`
		} `json:"leds"`
	}
	rec := doJSON(t, s, http.MethodGet, "/api/leds", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Scan returns sorted entries.
	if resp.LEDs[0].Name != "ACT" || resp.LEDs[0].Brightness != 255 || resp.LEDs[0].Trigger != "mmc0" {
		t.Errorf("ACT: %+v", resp.LEDs[0])
	}
	if resp.LEDs[1].Function != "capslock" {
		t.Errorf("function = %q", resp.LEDs[1].Function)
	}
}

func TestControlLED(t *testing.T) {
	s, opts := newTestServer(t)
	writeSysfs(t, opts.LEDRoot, map[string]string{
		"ACT/brightness":     "0\n",
		"ACT/max_brightness": "255\n",
		"ACT/trigger":        "[none] heartbeat\n",
	})

	rec := doJSON(t, s, http.MethodPost, "/api/leds/ACT",
		`{"brightness": 128, "trigger": "heartbeat"}`, nil)
	if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	b, err := os.ReadFile(filepath.Join(opts.LEDRoot, "ACT", "brightness"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "128" {
		t.Errorf("brightness file = %q", b)
	}
	trig, err := os.ReadFile(filepath.Join(opts.LEDRoot, "ACT", "trigger"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(trig)) != "heartbeat" {
		t.Errorf("trigger file = %q", trig)
	}
}

func TestControlMissingLED(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/leds/nope", `{"brightness": 1}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestListThermalZones(t *testing.T) {
	s, opts := newTestServer(t)
	writeSysfs(t, opts.ThermalRoot, map[string]string{
		"thermal_zone0/type": "x86_pkg_temp\n",
		"thermal_zone0/temp": "43500\n",
	})

	var resp struct {
		Zones []struct {
			Name    string  `json:"name"`
			Type    string  `json:"type"`
			Celsius float64 `json:"celsius"`
		} `json:"zones"`
	}
	rec := doJSON(t, s, http.MethodGet, "/api/thermal", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(resp.Zones) != 1 {
		t.Fatalf("zones: %+v", resp.Zones)
	}
	z := resp.Zones[0]
	if z.Type != "x86_pkg_temp" || z.Celsius != 43.5 {
		t.Errorf("zone: %+v", z)
	}
}

func TestDeviceStats(t *testing.T) {
	s, opts := newTestServer(t)
	path := filepath.Join(opts.DevDir, "video0")

	rec := doJSON(t, s, http.MethodGet, "/api/devices/video0/stats", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 before activity", rec.Code)
	}

	var r metrics.Recorder
	defer metrics.Delete(path)
	r.StreamStarted(path)
	r.FrameDequeued(path, 614400, 20*time.Millisecond)

	var resp struct {
		Running    bool    `json:"running"`
		Frames     uint64  `json:"frames"`
		LastWaitMs float64 `json:"last_wait_ms"`
	}
	rec = doJSON(t, s, http.MethodGet, "/api/devices/video0/stats", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !resp.Running || resp.Frames != 1 || resp.LastWaitMs != 20 {
		t.Errorf("stats: %+v", resp)
	}
}

func TestListGPIOChipsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	var resp struct {
		Chips []any `json:"chips"`
	}
	rec := doJSON(t, s, http.MethodGet, "/api/gpio", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(resp.Chips) != 0 {
		t.Errorf("chips: %+v", resp.Chips)
	}
}
