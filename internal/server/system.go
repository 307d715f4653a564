//go:build linux

package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tiagocoutinho/linuxgo/gpio"
	"github.com/tiagocoutinho/linuxgo/led"
	"github.com/tiagocoutinho/linuxgo/thermal"
)

// LEDInfo describes one sysfs LED.
type LEDInfo struct {
	Name       string `json:"name" example:"input3::capslock" doc:"Sysfs entry name"`
	Color      string `json:"color,omitempty" doc:"Parsed color part of the name"`
	Function   string `json:"function,omitempty" doc:"Parsed function part of the name"`
	Brightness int    `json:"brightness" doc:"Current brightness"`
	Max        int    `json:"max_brightness" doc:"Maximum brightness"`
	Trigger    string `json:"trigger,omitempty" doc:"Active trigger"`
}

// LEDListResponse lists LEDs.
type LEDListResponse struct {
	Body struct {
		LEDs  []LEDInfo `json:"leds" doc:"LED class devices"`
		Count int       `json:"count" doc:"Number of LEDs"`
	}
}

// LEDRequest sets brightness or trigger on one LED.
type LEDRequest struct {
	Name string `path:"name" example:"ACT" doc:"Sysfs entry name"`
	Body struct {
		Brightness *int    `json:"brightness,omitempty" doc:"Brightness to set"`
		Trigger    *string `json:"trigger,omitempty" example:"heartbeat" doc:"Trigger to activate"`
	}
}

// ThermalZoneInfo describes one thermal zone.
type ThermalZoneInfo struct {
	Name    string  `json:"name" example:"thermal_zone0" doc:"Sysfs entry name"`
	Type    string  `json:"type" example:"x86_pkg_temp" doc:"Sensor type"`
	Celsius float64 `json:"celsius" doc:"Current temperature in degrees Celsius"`
}

// ThermalResponse lists thermal zones.
type ThermalResponse struct {
	Body struct {
		Zones []ThermalZoneInfo `json:"zones" doc:"Thermal zones"`
	}
}

// GPIOChipInfo describes one GPIO chip.
type GPIOChipInfo struct {
	Path  string `json:"path" example:"/dev/gpiochip0" doc:"Device node path"`
	Name  string `json:"name" doc:"Chip name"`
	Label string `json:"label" doc:"Chip label"`
	Lines uint32 `json:"lines" doc:"Number of lines"`
}

// GPIOChipsResponse lists GPIO chips.
type GPIOChipsResponse struct {
	Body struct {
		Chips []GPIOChipInfo `json:"chips" doc:"GPIO chips"`
	}
}

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-leds",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "List LEDs",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*LEDListResponse, error) {
		root := s.options.LEDRoot
		if root == "" {
			root = led.DefaultRoot
		}
		resp := &LEDListResponse{}
		leds, err := led.Scan(root)
		if err != nil {
			// No LED class on this board is an empty list, not a failure.
			return resp, nil
		}
		for _, l := range leds {
			info := LEDInfo{Name: l.Name, Color: l.Color, Function: l.Function}
			info.Brightness, _ = l.Brightness()
			info.Max, _ = l.MaxBrightness()
			info.Trigger, _, _ = l.Trigger()
			resp.Body.LEDs = append(resp.Body.LEDs, info)
		}
		resp.Body.Count = len(resp.Body.LEDs)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds/{name}",
		Summary:     "Control LED",
		Tags:        []string{"system"},
		Errors:      []int{400, 404},
	}, func(ctx context.Context, input *LEDRequest) (*struct{}, error) {
		root := s.options.LEDRoot
		if root == "" {
			root = led.DefaultRoot
		}
		l, err := led.Open(root, input.Name)
		if err != nil {
			return nil, huma.Error404NotFound("LED not found", err)
		}
		if input.Body.Trigger != nil {
			if err := l.SetTrigger(*input.Body.Trigger); err != nil {
				return nil, huma.Error400BadRequest("Failed to set trigger", err)
			}
		}
		if input.Body.Brightness != nil {
			if err := l.SetBrightness(*input.Body.Brightness); err != nil {
				return nil, huma.Error400BadRequest("Failed to set brightness", err)
			}
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-thermal-zones",
		Method:      http.MethodGet,
		Path:        "/api/thermal",
		Summary:     "List Thermal Zones",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*ThermalResponse, error) {
		root := s.options.ThermalRoot
		if root == "" {
			root = thermal.DefaultRoot
		}
		resp := &ThermalResponse{}
		zones, err := thermal.Zones(root)
		if err != nil {
			return resp, nil
		}
		for _, z := range zones {
			c, err := z.Celsius()
			if err != nil {
				continue
			}
			resp.Body.Zones = append(resp.Body.Zones, ThermalZoneInfo{
				Name: z.Name, Type: z.Type, Celsius: c,
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-gpio-chips",
		Method:      http.MethodGet,
		Path:        "/api/gpio",
		Summary:     "List GPIO Chips",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*GPIOChipsResponse, error) {
		resp := &GPIOChipsResponse{}
		entries, err := os.ReadDir(s.options.DevDir)
		if err != nil {
			return resp, nil
		}
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), "gpiochip") {
				continue
			}
			path := filepath.Join(s.options.DevDir, e.Name())
			c, err := gpio.OpenChip(path)
			if err != nil {
				s.logger.Debug("Skipping GPIO chip", "path", path, "error", err)
				continue
			}
			info := c.Info()
			resp.Body.Chips = append(resp.Body.Chips, GPIOChipInfo{
				Path: path, Name: info.Name, Label: info.Label, Lines: info.Lines,
			})
			c.Close()
		}
		return resp, nil
	})
}
