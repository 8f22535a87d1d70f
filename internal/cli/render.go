package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/orogen/orogen/internal/exec"
	"github.com/orogen/orogen/internal/grid"
	"github.com/orogen/orogen/internal/platform/logger"
	"github.com/orogen/orogen/internal/terrain"
)

var renderFlags struct {
	out        string
	width      int
	height     int
	seed       int64
	iterations int
	logLevel   string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Generate, erode and encode a terrain heightmap to a PNG file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return render(cmd.Context())
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderFlags.out, "out", "o", "terrain.png", "output PNG path")
	renderCmd.Flags().IntVar(&renderFlags.width, "width", 256, "grid width")
	renderCmd.Flags().IntVar(&renderFlags.height, "height", 256, "grid height")
	renderCmd.Flags().Int64Var(&renderFlags.seed, "seed", 0, "noise seed")
	renderCmd.Flags().IntVar(&renderFlags.iterations, "iterations", 50, "thermal erosion iterations")
	renderCmd.Flags().StringVar(&renderFlags.logLevel, "log-level", "warn", "log level")
	rootCmd.AddCommand(renderCmd)
}

// render runs the full pipeline on a pool sized to the machine:
// generate, thermal erosion, heightmap encoding, PNG write.
func render(ctx context.Context) error {
	log := logger.Setup(renderFlags.logLevel)

	registry := newRegistry()
	pool, err := exec.NewPool(ctx, func(index int) (*exec.Unit, error) {
		return exec.NewUnit(registry, log), nil
	}, runtime.NumCPU(), log)
	if err != nil {
		return fmt.Errorf("failed to build execution pool: %w", err)
	}
	defer pool.Close()

	size := [2]int{renderFlags.width, renderFlags.height}

	elevation, err := runGridTask(ctx, pool, "terrain/generate", map[string]any{
		"size":   size,
		"seed":   renderFlags.seed,
		"shared": true,
	})
	if err != nil {
		return err
	}

	eroded, err := runGridTask(ctx, pool, "erosion/thermal", map[string]any{
		"size":              size,
		"buffer":            elevation.Release(),
		"iterations":        renderFlags.iterations,
		"sedimentationRate": 0.5,
		"evaporationRate":   0.001,
	})
	if err != nil {
		return err
	}

	var pixmap terrain.Pixmap
	err = pool.With(ctx, func(u *exec.Unit) error {
		payload, err := json.Marshal(map[string]any{
			"size":   size,
			"buffer": eroded.Release(),
		})
		if err != nil {
			return err
		}
		target := u.Submit(exec.Request{Type: "terrain/heightmap", Payload: payload})
		res, err := target.Wait(ctx)
		if err != nil {
			return err
		}
		pm, ok := res.Value.(terrain.Pixmap)
		if !ok {
			return fmt.Errorf("heightmap returned %T, want terrain.Pixmap", res.Value)
		}
		pixmap = pm
		return nil
	})
	if err != nil {
		return err
	}

	return writePNG(renderFlags.out, pixmap)
}

// runGridTask submits one task whose terminal value is a grid buffer.
func runGridTask(ctx context.Context, pool *exec.Pool, taskType string, params map[string]any) (*grid.Buffer, error) {
	var buf *grid.Buffer
	err := pool.With(ctx, func(u *exec.Unit) error {
		payload, err := json.Marshal(params)
		if err != nil {
			return err
		}
		target := u.Submit(exec.Request{Type: taskType, Payload: payload})
		res, err := target.Wait(ctx)
		if err != nil {
			return err
		}
		b, ok := res.Value.(*grid.Buffer)
		if !ok {
			return fmt.Errorf("%s returned %T, want *grid.Buffer", taskType, res.Value)
		}
		buf = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", taskType, err)
	}
	return buf, nil
}

func writePNG(path string, pm terrain.Pixmap) error {
	img := image.NewRGBA(image.Rect(0, 0, pm.Width, pm.Height))
	copy(img.Pix, pm.Pixels)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
