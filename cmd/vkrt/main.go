// Command vkrt renders triangle meshes with the vkrt ray tracer.
package main

import (
	"os"
	"runtime"

	"github.com/urfave/cli"

	"github.com/celer/vkrt"
	_ "github.com/celer/vkrt/driver/soft"
	_ "github.com/celer/vkrt/driver/vkg"
)

func init() {
	// glfw must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "vkrt"
	app.Usage = "render triangle meshes with progressive ray tracing"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Value: vkrt.DefaultConfigPath,
			Usage: "configuration file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a mesh headless and export the image",
			Description: `
Load a wavefront obj file (or the built-in triangle when no file is given),
accumulate samples until the sample target is reached and write the image.
The output format follows the file extension: .png, .bmp, .tif or .tiff.`,
			ArgsUsage: "[mesh.obj]",
			Flags: append(renderFlags(),
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			),
			Action: Render,
		},
		{
			Name:  "view",
			Usage: "render a mesh interactively in a window",
			Description: `
Open a window and refine the image while it is shown. Arrow keys orbit the
camera, R restarts the accumulation, P exports the current image and
Escape quits.`,
			ArgsUsage: "[mesh.obj]",
			Flags: append(renderFlags(),
				cli.BoolFlag{
					Name:  "watch",
					Usage: "reload the mesh when its file changes",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "view.png",
					Usage: "image filename written by the P key",
				},
			),
			Action: View,
		},
		{
			Name:   "list-devices",
			Usage:  "list the devices of every driver",
			Action: ListDevices,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration",
			Flags:  renderFlags(),
			Action: PrintConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
