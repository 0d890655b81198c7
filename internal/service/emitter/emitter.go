package emitter

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
)

const (
	// DefaultLogLevel is the media server log level.
	DefaultLogLevel = "info"

	defaultAPIPort    = 9997
	defaultWebRTCPort = 8889
	schemaURL         = "mem://mediamtx-config.schema.json"
)

var (
	//go:embed mediamtx.yml.tmpl
	configTemplate string

	//go:embed schema.json
	configSchema string

	errRoundTrip = errors.New("rendered configuration does not round-trip")

	tmpl = template.Must(template.New("mediamtx.yml").Funcs(template.FuncMap{
		"quote": strconv.Quote,
	}).Parse(configTemplate))

	schema = jsonschema.MustCompileString(schemaURL, configSchema)
)

// Settings are the parameterized fields of the rendered configuration.
type Settings struct {
	LogLevel        string   `yaml:"logLevel"`
	LogDestinations []string `yaml:"logDestinations"`
	LogFile         string   `yaml:"logFile"`
	API             bool     `yaml:"api"`
	APIAddress      string   `yaml:"apiAddress"`
	RTSPAddress     string   `yaml:"rtspAddress"`
	RTMPAddress     string   `yaml:"rtmpAddress"`
	HLSAddress      string   `yaml:"hlsAddress"`
	WebRTC          bool     `yaml:"webrtc"`
	WebRTCAddress   string   `yaml:"webrtcAddress"`
}

// SettingsFor derives the configuration fields from target.
func SettingsFor(target *install.Target) *Settings {
	apiPort, webrtcPort := target.Ports.API, target.Ports.WebRTC
	if apiPort == 0 {
		apiPort = defaultAPIPort
	}

	if webrtcPort == 0 {
		webrtcPort = defaultWebRTCPort
	}

	return &Settings{
		LogLevel:        DefaultLogLevel,
		LogDestinations: []string{"stdout", "file"},
		LogFile:         target.ServerLogFile(),
		API:             target.Ports.API > 0,
		APIAddress:      address(apiPort),
		RTSPAddress:     address(target.Ports.RTSP),
		RTMPAddress:     address(target.Ports.RTMP),
		HLSAddress:      address(target.Ports.HLS),
		WebRTC:          target.Ports.WebRTC > 0,
		WebRTCAddress:   address(webrtcPort),
	}
}

func address(port int) string {
	return ":" + strconv.Itoa(port)
}

// Render produces the configuration file for target and checks it before
// returning: the document must satisfy the schema and parse back into the
// same settings. Any failure is a ConfigError.
func Render(target *install.Target) ([]byte, error) {
	want := SettingsFor(target)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, want); err != nil {
		return nil, install.Wrap(install.KindConfig, "render configuration", err)
	}

	data := buf.Bytes()

	if err := Validate(data); err != nil {
		return nil, install.Wrap(install.KindConfig, "validate configuration", err)
	}

	got, err := Parse(data)
	if err != nil {
		return nil, install.Wrap(install.KindConfig, "parse configuration", err)
	}

	if !got.equal(want) {
		return nil, install.Wrap(install.KindConfig, "validate configuration", errRoundTrip)
	}

	return data, nil
}

// Parse reads the parameterized fields back from a rendered file.
func Parse(data []byte) (*Settings, error) {
	settings := new(Settings)
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	return settings, nil
}

// Validate checks a configuration document against the embedded schema.
func Validate(data []byte) error {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("unmarshal configuration: %w", err)
	}

	// The validator works on JSON values.
	raw, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("convert configuration: %w", err)
	}

	var payload any
	if err = json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("convert configuration: %w", err)
	}

	if err = schema.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

func (s *Settings) equal(other *Settings) bool {
	if !slices.Equal(s.LogDestinations, other.LogDestinations) {
		return false
	}

	a, b := *s, *other
	a.LogDestinations, b.LogDestinations = nil, nil

	return reflect.DeepEqual(a, b)
}
