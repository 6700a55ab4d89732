// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// DefaultPath is the configuration file read when no -config flag is given.
const DefaultPath = "guncon_config.txt"

// ErrInvalidConfiguration wraps every parse or validation failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Point is a screen coordinate given in the configuration.
type Point struct {
	X int
	Y int
}

// Config holds all application configuration values.
type Config struct {
	// Screen
	Width             int
	Height            int
	FrameRate         int
	FramebufferDevice string

	// Device
	DeviceName string

	// Reserved for fixed-target capture modes
	CenterTarget  Point
	TopLeftTarget Point
	Capture       string

	// External tools
	EvdevJoystickBin string
	XinputBin        string
	JscalBin         string

	// MQTT
	MQTTBroker            string
	MQTTClientIDCalibrate string
	MQTTClientIDWeb       string
	MQTTClientIDConsole   string

	// Topics
	TopicState  string
	TopicResult string

	// Status panel
	StatusPanel    bool
	StatusPanelBus string

	// Web Server
	WebServerPort int
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Width:                 1366,
		Height:                768,
		FrameRate:             30,
		FramebufferDevice:     "/dev/fb0",
		DeviceName:            "Namco GunCon 3",
		CenterTarget:          Point{X: 160, Y: 120},
		TopLeftTarget:         Point{X: 50, Y: 50},
		EvdevJoystickBin:      "evdev-joystick",
		XinputBin:             "xinput",
		JscalBin:              "jscal",
		MQTTClientIDCalibrate: "guncon-calibrate",
		MQTTClientIDWeb:       "guncon-web",
		MQTTClientIDConsole:   "guncon-console",
		TopicState:            "guncon/calibration/state",
		TopicResult:           "guncon/calibration/result",
		WebServerPort:         8080,
	}
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file on top of the defaults. A missing file
// is not an error.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: invalid config line %d: %q", ErrInvalidConfiguration, lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("%w: config line %d: %w", ErrInvalidConfiguration, lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Screen
	case "RESOLUTION":
		w, h, err := ParseResolution(value)
		if err != nil {
			return err
		}
		c.Width, c.Height = w, h
	case "FRAME_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FRAME_RATE %q: %w", value, err)
		}
		c.FrameRate = rate
	case "FRAMEBUFFER_DEVICE":
		c.FramebufferDevice = value

	// Device
	case "DEVICE_NAME":
		c.DeviceName = value

	case "CENTER_TARGET":
		p, err := ParsePoint(value)
		if err != nil {
			return fmt.Errorf("invalid CENTER_TARGET: %w", err)
		}
		c.CenterTarget = p
	case "TOPLEFT_TARGET":
		p, err := ParsePoint(value)
		if err != nil {
			return fmt.Errorf("invalid TOPLEFT_TARGET: %w", err)
		}
		c.TopLeftTarget = p
	case "CAPTURE":
		c.Capture = value

	// External tools
	case "EVDEV_JOYSTICK_BIN":
		c.EvdevJoystickBin = value
	case "XINPUT_BIN":
		c.XinputBin = value
	case "JSCAL_BIN":
		c.JscalBin = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CALIBRATE":
		c.MQTTClientIDCalibrate = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_RESULT":
		c.TopicResult = value

	// Status panel
	case "STATUS_PANEL":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid STATUS_PANEL %q: %w", value, err)
		}
		c.StatusPanel = on
	case "STATUS_PANEL_BUS":
		c.StatusPanelBus = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: RESOLUTION must be positive, got %dx%d", ErrInvalidConfiguration, c.Width, c.Height)
	}
	if c.Width > MaxDimension || c.Height > MaxDimension {
		return fmt.Errorf("%w: RESOLUTION must be at most %dx%d, got %dx%d",
			ErrInvalidConfiguration, MaxDimension, MaxDimension, c.Width, c.Height)
	}
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		return fmt.Errorf("%w: FRAME_RATE must be 1-240, got %d", ErrInvalidConfiguration, c.FrameRate)
	}
	if c.DeviceName == "" {
		return fmt.Errorf("%w: DEVICE_NAME is required", ErrInvalidConfiguration)
	}
	if c.TopicState == "" || c.TopicResult == "" {
		return fmt.Errorf("%w: TOPIC_STATE and TOPIC_RESULT are required", ErrInvalidConfiguration)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("%w: WEB_SERVER_PORT must be 1-65535, got %d", ErrInvalidConfiguration, c.WebServerPort)
	}
	return nil
}

// Overrides are command-line values layered on top of the file. Empty
// fields leave the file value untouched.
type Overrides struct {
	Resolution    string
	CenterTarget  string
	TopLeftTarget string
	Capture       string
}

// Apply layers o onto c and re-validates.
func (c *Config) Apply(o Overrides) error {
	if o.Resolution != "" {
		w, h, err := ParseResolution(o.Resolution)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		c.Width, c.Height = w, h
	}
	if o.CenterTarget != "" {
		p, err := ParsePoint(o.CenterTarget)
		if err != nil {
			return fmt.Errorf("%w: center target: %w", ErrInvalidConfiguration, err)
		}
		c.CenterTarget = p
	}
	if o.TopLeftTarget != "" {
		p, err := ParsePoint(o.TopLeftTarget)
		if err != nil {
			return fmt.Errorf("%w: top-left target: %w", ErrInvalidConfiguration, err)
		}
		c.TopLeftTarget = p
	}
	if o.Capture != "" {
		c.Capture = o.Capture
	}
	return c.validate()
}

// MaxDimension bounds each side of the screen resolution.
const MaxDimension = 16384

var pointRe = regexp.MustCompile(`^\(?(\d+)\s*,\s*(\d+)\)?`)

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	if w > MaxDimension || h > MaxDimension {
		return 0, 0, fmt.Errorf("invalid resolution %q: dimensions must be at most %d", s, MaxDimension)
	}
	return w, h, nil
}

// ParsePoint parses "(x, y)" with optional parentheses.
func ParsePoint(s string) (Point, error) {
	m := pointRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Point{}, fmt.Errorf("invalid point %q: want (x, y)", s)
	}
	x, err := strconv.Atoi(m[1])
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.Atoi(m[2])
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

// InitGlobal loads the configuration once for commands that share it
// through Get.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration. InitGlobal must be called first.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
