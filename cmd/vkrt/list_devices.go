package main

import (
	"bytes"
	"fmt"

	units "github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/celer/vkrt/driver"
)

// ListDevices prints the devices of every registered driver. Drivers
// that cannot be loaded are reported and skipped.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Driver", "Index", "Name", "Type", "API", "Device memory", "Host memory", "Ray tracing"})
	n := 0
	for _, drv := range driver.Drivers() {
		devs, err := drv.Devices()
		if err != nil {
			logger.Warningf("driver %s: %v", drv.Name(), err)
			continue
		}
		for _, d := range devs {
			table.Append([]string{
				drv.Name(),
				fmt.Sprintf("%d", d.Index),
				d.Name,
				d.Type,
				d.APIVersion,
				units.BytesSize(float64(d.DeviceMemory)),
				units.BytesSize(float64(d.HostMemory)),
				fmt.Sprintf("%t", d.RayTracing),
			})
			n++
		}
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	table.Render()
	fmt.Print(buf.String())
	return nil
}
