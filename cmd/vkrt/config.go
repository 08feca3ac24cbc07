package main

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"

	"github.com/celer/vkrt"
)

// renderFlags are the flags overriding the configuration file.
func renderFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "driver, d",
			Usage: "backend: soft or vulkan",
		},
		cli.IntFlag{
			Name:  "device",
			Value: -1,
			Usage: "device index as shown by list-devices (-1 picks the first suitable)",
		},
		cli.IntFlag{
			Name:  "width",
			Value: 512,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 512,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "spp",
			Usage: "samples per pixel to accumulate",
		},
		cli.IntFlag{
			Name:  "spf",
			Usage: "samples per pixel traced each frame",
		},
		cli.StringFlag{
			Name:  "shaders",
			Usage: "directory of compiled SPIR-V shaders",
		},
		cli.StringFlag{
			Name:  "staging-limit",
			Usage: "largest staging buffer, e.g. 64MiB",
		},
		cli.BoolFlag{
			Name:  "validation",
			Usage: "enable the validation layers",
		},
	}
}

// loadConfig reads the configuration file and applies the flags that
// were set on the command line.
func loadConfig(ctx *cli.Context) (vkrt.Config, error) {
	cfg, err := vkrt.LoadConfig(ctx.GlobalString("config"))
	if err != nil {
		return cfg, err
	}
	if ctx.IsSet("driver") {
		cfg.Driver = ctx.String("driver")
	}
	if ctx.IsSet("device") {
		cfg.Device = ctx.Int("device")
	}
	if ctx.IsSet("spp") {
		cfg.SamplesToRender = ctx.Int("spp")
	}
	if ctx.IsSet("spf") {
		cfg.SamplesPerFrame = ctx.Int("spf")
	}
	if ctx.IsSet("shaders") {
		dir, err := homedir.Expand(ctx.String("shaders"))
		if err != nil {
			return cfg, err
		}
		cfg.ShaderDir = dir
	}
	if ctx.IsSet("staging-limit") {
		n, err := units.RAMInBytes(ctx.String("staging-limit"))
		if err != nil {
			return cfg, fmt.Errorf("staging-limit: %w", err)
		}
		cfg.StagingLimit = n
	}
	if ctx.Bool("validation") {
		cfg.Validation = true
	}
	return cfg, nil
}

// PrintConfig writes the effective configuration in the file format.
func PrintConfig(ctx *cli.Context) error {
	setupLogging(ctx)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
