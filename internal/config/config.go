// Package config resolves command-line flags and environment variables
// into the settings both binaries need, following the teacher's flag-var
// style (see msagent's original main.go).
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every CLI/env-resolved setting shared by cmd/scene and
// cmd/common.
type Config struct {
	DeviceID     string
	HIDWidth     int
	HIDHeight    int
	TemplatesDir string
	ConfigPath   string
	StatusAddr   string
	APIBase      string
}

// Parse reads flags (falling back to env vars, falling back to defaults)
// and returns the resolved Config. Call once from main.
func Parse() Config {
	var cfg Config

	flag.StringVar(&cfg.DeviceID, "device-id", envOr("DEVICE_ID", ""), "target device id")
	flag.IntVar(&cfg.HIDWidth, "hid-w", envOrInt("HID_W", 0), "manual screen width in HID units (0 = HID dispatch disabled)")
	flag.IntVar(&cfg.HIDHeight, "hid-h", envOrInt("HID_H", 0), "manual screen height in HID units (0 = HID dispatch disabled)")
	flag.StringVar(&cfg.TemplatesDir, "templates", "./templates", "directory of labeled scene template images")
	flag.StringVar(&cfg.ConfigPath, "config", "", "optional YAML file overlaying region/rival/tuning defaults")
	flag.StringVar(&cfg.StatusAddr, "status-addr", ":8080", "status page listen address")
	flag.StringVar(&cfg.APIBase, "api-base", envOr("SFU_API_BASE", "http://192.168.124.45:8888/api/message"), "HID injector base URL")

	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// ManualSize returns (w, h, true) if both HIDWidth and HIDHeight were set,
// signaling manual calibration; otherwise (0, 0, false). cmd/scene enables
// HID dispatch (and with it the launch sequence) only when the size is set,
// so an unset size disables dispatch rather than triggering an auto-scan.
func (c Config) ManualSize() (w, h int, ok bool) {
	if c.HIDWidth > 0 && c.HIDHeight > 0 {
		return c.HIDWidth, c.HIDHeight, true
	}
	return 0, 0, false
}
