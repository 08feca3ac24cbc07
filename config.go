package vkrt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	homedir "github.com/mitchellh/go-homedir"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/celer/vkrt/driver/soft"
)

// DefaultConfigPath is the configuration file read by the command line
// tool when no other path is given.
const DefaultConfigPath = "~/.config/vkrt/config.toml"

// Config holds the settings of a Context.
type Config struct {
	// Driver is the registry name of the backend.
	Driver string
	// Device is the index of the device opened by the driver. A
	// negative value selects the first suitable device.
	Device int

	// FramesInFlight is the number of frame slots.
	FramesInFlight int
	// SamplesToRender is the accumulation target.
	SamplesToRender int
	// SamplesPerFrame is the number of samples traced per dispatch.
	SamplesPerFrame int

	// FenceTimeout bounds the wait for a frame slot or a one-shot
	// submission.
	FenceTimeout time.Duration

	// ShaderDir holds compiled SPIR-V modules. When empty the built-in
	// programs are used, which only the soft backend can run.
	ShaderDir string

	// Validation enables the validation layers of the backend.
	Validation bool

	// Background is the linear color returned by rays that miss.
	Background [3]float32

	// StagingLimit caps the size of a staging buffer. Larger uploads
	// are split in chunks.
	StagingLimit int64

	// Seed perturbs the per-pixel random streams.
	Seed uint32
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Driver:          soft.Name,
		Device:          -1,
		FramesInFlight:  2,
		SamplesToRender: 256,
		SamplesPerFrame: 1,
		FenceTimeout:    5 * time.Second,
		Background:      [3]float32{0.6, 0.7, 0.9},
		StagingLimit:    64 << 20,
		Seed:            0x9e3779b9,
	}
}

// check validates c and fills in zero values with defaults.
func (c *Config) check() error {
	def := DefaultConfig()
	if c.Driver == "" {
		c.Driver = def.Driver
	}
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = def.FramesInFlight
	}
	if c.SamplesPerFrame <= 0 {
		c.SamplesPerFrame = def.SamplesPerFrame
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = def.FenceTimeout
	}
	if c.StagingLimit <= 0 {
		c.StagingLimit = def.StagingLimit
	}
	if c.SamplesToRender < 0 {
		return fmt.Errorf("negative sample target %d", c.SamplesToRender)
	}
	return nil
}

// fileConfig is the TOML form of Config. Durations and sizes are
// strings such as "2s" and "64MiB".
type fileConfig struct {
	Driver          *string    `toml:"driver"`
	Device          *int       `toml:"device"`
	FramesInFlight  *int       `toml:"frames_in_flight"`
	SamplesToRender *int       `toml:"samples_to_render"`
	SamplesPerFrame *int       `toml:"samples_per_frame"`
	FenceTimeout    *string    `toml:"fence_timeout"`
	ShaderDir       *string    `toml:"shader_dir"`
	Validation      *bool      `toml:"validation"`
	Background      *[]float32 `toml:"background"`
	StagingLimit    *string    `toml:"staging_limit"`
	Seed            *uint32    `toml:"seed"`
}

// LoadConfig reads the TOML file at path over the defaults. A leading
// ~ is expanded. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	p, err := homedir.Expand(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return cfg, err
	}
	if err := cfg.decode(data); err != nil {
		return cfg, fmt.Errorf("%s: %w", p, err)
	}
	logger.Infof("loaded configuration from %s", p)
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	var f fileConfig
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&f); err != nil {
		return err
	}
	if f.Driver != nil {
		c.Driver = *f.Driver
	}
	if f.Device != nil {
		c.Device = *f.Device
	}
	if f.FramesInFlight != nil {
		c.FramesInFlight = *f.FramesInFlight
	}
	if f.SamplesToRender != nil {
		c.SamplesToRender = *f.SamplesToRender
	}
	if f.SamplesPerFrame != nil {
		c.SamplesPerFrame = *f.SamplesPerFrame
	}
	if f.FenceTimeout != nil {
		d, err := time.ParseDuration(*f.FenceTimeout)
		if err != nil {
			return fmt.Errorf("fence_timeout: %w", err)
		}
		c.FenceTimeout = d
	}
	if f.ShaderDir != nil {
		dir, err := homedir.Expand(*f.ShaderDir)
		if err != nil {
			return fmt.Errorf("shader_dir: %w", err)
		}
		c.ShaderDir = dir
	}
	if f.Validation != nil {
		c.Validation = *f.Validation
	}
	if f.Background != nil {
		if len(*f.Background) != 3 {
			return fmt.Errorf("background: want 3 components, got %d", len(*f.Background))
		}
		copy(c.Background[:], *f.Background)
	}
	if f.StagingLimit != nil {
		n, err := units.RAMInBytes(*f.StagingLimit)
		if err != nil {
			return fmt.Errorf("staging_limit: %w", err)
		}
		c.StagingLimit = n
	}
	if f.Seed != nil {
		c.Seed = *f.Seed
	}
	return nil
}

// Encode writes c in the TOML form read by LoadConfig.
func (c *Config) Encode() ([]byte, error) {
	bg := c.Background[:]
	timeout := c.FenceTimeout.String()
	staging := units.BytesSize(float64(c.StagingLimit))
	return toml.Marshal(fileConfig{
		Driver:          &c.Driver,
		Device:          &c.Device,
		FramesInFlight:  &c.FramesInFlight,
		SamplesToRender: &c.SamplesToRender,
		SamplesPerFrame: &c.SamplesPerFrame,
		FenceTimeout:    &timeout,
		ShaderDir:       &c.ShaderDir,
		Validation:      &c.Validation,
		Background:      &bg,
		StagingLimit:    &staging,
		Seed:            &c.Seed,
	})
}
