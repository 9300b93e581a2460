package hwcodec

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of the hwcodec tools.
type Config struct {
	LogLevel string         `yaml:"log_level"` // disable, error, warn, info, debug, trace
	Encode   EncodeConfig   `yaml:"encode"`
	Decode   DecodeConfig   `yaml:"decode"`
	Pipeline PipelineTuning `yaml:"pipeline"`
}

// EncodeConfig selects and tunes an encoder.
type EncodeConfig struct {
	Driver    EncodeDriver `yaml:"driver"` // nvenc, amf, mfx
	API       API          `yaml:"api"`    // dx11, cuda, vaapi, vulkan
	Format    DataFormat   `yaml:"format"` // h264, h265, av1
	LUID      int64        `yaml:"luid"`
	Width     int          `yaml:"width"`
	Height    int          `yaml:"height"`
	Kbitrate  int          `yaml:"kbitrate"`
	Framerate int          `yaml:"framerate"`
	GOP       int          `yaml:"gop"` // 0 selects MaxGOP
}

// DecodeConfig selects a decoder.
type DecodeConfig struct {
	Driver             DecodeDriver `yaml:"driver"` // cuvid, amf, mfx
	API                API          `yaml:"api"`
	Format             DataFormat   `yaml:"format"`
	LUID               int64        `yaml:"luid"`
	OutputSharedHandle bool         `yaml:"output_shared_handle"`
}

// PipelineTuning holds Pipeline settings that are not codec contexts.
type PipelineTuning struct {
	QueueDepth     int           `yaml:"queue_depth"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	Output         string        `yaml:"output"` // elementary stream file, optional
}

// DefaultConfig returns a 1080p30 H.264 configuration on NVIDIA over DX11.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Encode: EncodeConfig{
			Driver:    EncodeDriverNVENC,
			API:       APIDX11,
			Format:    DataFormatH264,
			Width:     1920,
			Height:    1080,
			Kbitrate:  5000,
			Framerate: 30,
			GOP:       MaxGOP,
		},
		Decode: DecodeConfig{
			Driver:             DecodeDriverCUVID,
			API:                APIDX11,
			Format:             DataFormatH264,
			OutputSharedHandle: true,
		},
		Pipeline: PipelineTuning{
			QueueDepth:     defaultQueueDepth,
			CaptureTimeout: defaultCaptureTimeout,
		},
	}
}

// LoadConfig loads configuration from a YAML file. Environment variables in
// the file are expanded and unset fields keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration data on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", ErrInvalidConfig, err)
	}
	if cfg.Encode.GOP == 0 {
		cfg.Encode.GOP = MaxGOP
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.EncodeContext(NoDevice).validate(); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrInvalidConfig, err)
	}
	if err := c.DecodeContext(NoDevice).validate(); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrInvalidConfig, err)
	}
	if c.Pipeline.QueueDepth < 0 {
		return fmt.Errorf("%w: queue_depth %d", ErrInvalidConfig, c.Pipeline.QueueDepth)
	}
	if c.Pipeline.CaptureTimeout < 0 {
		return fmt.Errorf("%w: capture_timeout %v", ErrInvalidConfig, c.Pipeline.CaptureTimeout)
	}
	return nil
}

// EncodeContext builds the encoder descriptor for device.
func (c *Config) EncodeContext(device Device) EncodeContext {
	e := c.Encode
	return EncodeContext{
		FeatureContext: FeatureContext{
			Driver:     e.Driver,
			API:        e.API,
			DataFormat: e.Format,
			LUID:       e.LUID,
		},
		DynamicContext: DynamicContext{
			Device:    device,
			Width:     e.Width,
			Height:    e.Height,
			Kbitrate:  e.Kbitrate,
			Framerate: e.Framerate,
			GOP:       e.GOP,
		},
	}
}

// DecodeContext builds the decoder descriptor. device is ignored for shared
// output decoders, which own their device.
func (c *Config) DecodeContext(device Device) DecodeContext {
	d := c.Decode
	if d.OutputSharedHandle {
		device = NoDevice
	}
	return DecodeContext{
		Driver:             d.Driver,
		Device:             device,
		API:                d.API,
		DataFormat:         d.Format,
		OutputSharedHandle: d.OutputSharedHandle,
		LUID:               d.LUID,
	}
}

// PipelineConfig builds a PipelineConfig for the given collaborators.
func (c *Config) PipelineConfig(device Device, capturer Capturer, sink PacketSink, renderer Renderer) PipelineConfig {
	return PipelineConfig{
		Capturer:       capturer,
		Encode:         c.EncodeContext(device),
		Sink:           sink,
		Decode:         c.DecodeContext(device),
		Renderer:       renderer,
		QueueDepth:     c.Pipeline.QueueDepth,
		CaptureTimeout: c.Pipeline.CaptureTimeout,
	}
}
