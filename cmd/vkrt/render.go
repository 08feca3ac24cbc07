package main

import (
	"bytes"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/celer/vkrt"
	"github.com/celer/vkrt/mesh"
)

// loadMesh reads the mesh named by the first argument, or returns the
// built-in triangle.
func loadMesh(ctx *cli.Context) (*mesh.Mesh, error) {
	if ctx.NArg() == 0 {
		logger.Info("no mesh given, rendering the built-in triangle")
		return mesh.Triangle(), nil
	}
	return mesh.Load(ctx.Args().First())
}

// Render renders a mesh headless until the sample target is reached
// and exports the image.
func Render(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	m, err := loadMesh(ctx)
	if err != nil {
		return err
	}

	rc, err := vkrt.CreateContext(nil, cfg)
	if err != nil {
		return err
	}
	defer rc.Destroy()

	start := time.Now()
	if err := rc.LoadScene(ctx.Int("width"), ctx.Int("height"), m); err != nil {
		return err
	}
	logger.Infof("scene loaded in %v", time.Since(start))

	cam := vkrt.DefaultCamera(m)
	start = time.Now()
	for !rc.Accumulation().Converged() {
		if err := rc.RenderFrame(cam); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	out := ctx.String("out")
	if err := rc.Export(out); err != nil {
		return err
	}
	logger.Noticef("wrote %s", out)

	displayFrameStats(rc, elapsed)
	return nil
}

// memoryReporter is implemented by GPUs that track their memory use.
type memoryReporter interface {
	MemoryUsed() int64
}

func displayFrameStats(rc *vkrt.Context, elapsed time.Duration) {
	st := rc.Stats()
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Statistic", "Value"})
	table.Append([]string{"Device", rc.GPU().Info().Name})
	table.Append([]string{"Frames", fmt.Sprintf("%d", st.Frames)})
	table.Append([]string{"Dispatches", fmt.Sprintf("%d", st.Dispatches)})
	table.Append([]string{"Skipped", fmt.Sprintf("%d", st.Skipped)})
	table.Append([]string{"Converged", fmt.Sprintf("%d", st.Converged)})
	table.Append([]string{"Samples", fmt.Sprintf("%d", st.Samples)})
	table.Append([]string{"Last frame", st.LastFrame.String()})
	table.Append([]string{"Fence wait", st.FenceWait.String()})
	if mr, ok := rc.GPU().(memoryReporter); ok {
		table.Append([]string{"Memory", units.BytesSize(float64(mr.MemoryUsed()))})
	}
	table.SetFooter([]string{"Render time", units.HumanDuration(elapsed)})
	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
