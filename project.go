package rastal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/driver"
	"github.com/chazu/rastal/journal"
	"github.com/chazu/rastal/manifest"
	"github.com/chazu/rastal/vm"
)

var log = commonlog.GetLogger("rastal")

// ProjectRun is the outcome of RunProject.
type ProjectRun struct {
	Job     *driver.Job
	Outputs map[string]string // destination name → written file
}

// RunProject runs the script of a project manifest. Source images are
// read from disk, destinations are shaped from the manifest (or the first
// source) and written once the job completes. Options given here override
// the manifest's run settings.
func RunProject(ctx context.Context, m *manifest.Manifest, opts ...Option) (*ProjectRun, error) {
	strategy, err := compiler.ParseStrategy(m.Script.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	c := &config{
		compile: []compiler.Option{compiler.WithStrategy(strategy)},
		tileW:   m.Run.TileWidth,
		tileH:   m.Run.TileHeight,
		runtime: driver.RuntimeOptions{
			Outside:           m.Run.Outside,
			MaxLoopIterations: m.Run.MaxLoopIterations,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	source, err := os.ReadFile(m.ScriptPath())
	if err != nil {
		return nil, fmt.Errorf("cannot read script: %w", err)
	}

	resolver := manifest.NewResolver(m)
	bindings, err := resolver.Bindings()
	if err != nil {
		return nil, err
	}
	resolved, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}
	images, err := loadImages(resolved)
	if err != nil {
		return nil, err
	}

	if path := m.JournalPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		c.listeners = append(c.listeners, j)
	}
	if path := m.EventsPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("cannot create event stream: %w", err)
		}
		defer f.Close()
		w := journal.NewStreamWriter(f)
		defer func() {
			if err := w.Err(); err != nil {
				log.Errorf("event stream %s: %s", path, err)
			}
		}()
		c.listeners = append(c.listeners, w)
	}

	job := driver.NewScriptJob(string(source), bindings, images, c.runtime, c.compile...)
	run := &ProjectRun{Job: job, Outputs: make(map[string]string)}
	if err := c.driver().Run(ctx, job); err != nil {
		return run, err
	}

	for _, img := range resolved {
		if img.Output == "" {
			continue
		}
		buf := images.Destinations[img.Name].(*vm.Buffer)
		if err := vm.WriteImageFile(img.Output, buf); err != nil {
			return run, err
		}
		run.Outputs[img.Name] = img.Output
		log.Infof("wrote %s to %s", img.Name, img.Output)
	}
	return run, nil
}

// loadImages reads every source and allocates every destination. A pure
// destination takes its shape from the manifest, falling back to the
// size of the first source and one band. A name bound both ways starts as
// a copy of its source.
func loadImages(resolved []manifest.ResolvedImage) (driver.Images, error) {
	images := driver.Images{
		Sources:      make(map[string]vm.Raster),
		Destinations: make(map[string]vm.WritableRaster),
	}

	var first *vm.Buffer
	buffers := make(map[string]*vm.Buffer)
	for _, img := range resolved {
		if img.Input == "" {
			continue
		}
		buf, err := vm.ReadImageFile(img.Input, img.Image.Width, img.Image.Height)
		if err != nil {
			return images, fmt.Errorf("source image %q: %w", img.Name, err)
		}
		log.Debugf("read %s: %v, %d bands", img.Name, buf.Bounds(), buf.Bands())
		images.Sources[img.Name] = buf
		buffers[img.Name] = buf
		if first == nil {
			first = buf
		}
	}

	for _, img := range resolved {
		if img.Output == "" {
			continue
		}
		if src, ok := buffers[img.Name]; ok {
			images.Destinations[img.Name] = vm.NewBufferFrom(src)
			continue
		}
		w, h, bands := img.Image.Width, img.Image.Height, img.Image.Bands
		if (w == 0 || h == 0) && first != nil {
			size := first.Bounds().Size()
			w, h = size.X, size.Y
		}
		if w == 0 || h == 0 {
			return images, fmt.Errorf("destination image %q: no width and height and no source to copy them from", img.Name)
		}
		if bands == 0 {
			bands = 1
		}
		images.Destinations[img.Name] = vm.NewBufferSize(w, h, bands)
	}
	return images, nil
}
