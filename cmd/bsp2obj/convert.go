package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/bsp2obj/internal/config"
	"github.com/Faultbox/bsp2obj/internal/logger"
	"github.com/Faultbox/bsp2obj/pkg/bsp"
	"github.com/Faultbox/bsp2obj/pkg/export"
	"github.com/Faultbox/bsp2obj/pkg/pk3"
	"github.com/Faultbox/bsp2obj/pkg/shader"
)

// conversion is the outcome of converting one map.
type conversion struct {
	path  string
	stats *export.Stats
	err   error
}

func cmdObj(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("obj", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	cfg, err := setup(fs, flags, args)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usage("obj [flags] <file.bsp>...")
	}

	opts, err := cfg.ExportOptions()
	if err != nil {
		return err
	}

	table, closeSources, err := loadShaders(cfg, logger.Log)
	if err != nil {
		return err
	}
	defer closeSources()
	opts.Resolver = table

	logger.Log.Info("--- Convert BSP to OBJ ---",
		zap.Int("maps", fs.NArg()),
		zap.Int("workers", cfg.Export.Workers),
		zap.Int("shader_definitions", table.Len()))

	results := convertAll(fs.Args(), opts, cfg.Export.Workers)

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "%s: FAILED: %v\n", r.path, r.err)
			continue
		}
		s := r.stats
		fmt.Fprintf(w, "%s: %d vertices, %d faces, %d surfaces (%d skipped), %d materials (%d missing)\n",
			r.path, s.Vertices, s.Faces, s.Surfaces, s.SkippedSurfaces, s.Materials, len(s.MissingShaders))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(results))
	}
	return nil
}

// convertAll converts every map with at most workers running at once.
// Results keep the order of paths.
func convertAll(paths []string, opts export.Options, workers int) []conversion {
	results := make([]conversion, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			stats, err := convertOne(path, opts)
			results[i] = conversion{path: path, stats: stats, err: err}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Log.Debug("first conversion error", zap.Error(err))
	}
	return results
}

func convertOne(path string, opts export.Options) (*export.Stats, error) {
	log := logger.Named(filepath.Base(path))
	opts.Logger = log

	b, err := bsp.ParseBSPFile(path)
	if err != nil {
		log.Error("loading map", zap.Error(err))
		return nil, err
	}
	log.Debug("loaded map",
		zap.Int32("version", b.Version),
		zap.Int("shaders", len(b.Shaders)),
		zap.Int("surfaces", len(b.Surfaces)),
		zap.Int("entities", len(b.Entities)))

	stats, err := export.ConvertFile(b, path, opts)
	if err != nil {
		var openErr *export.OpenError
		if errors.As(err, &openErr) {
			log.Error("cannot create output", zap.String("file", openErr.Path), zap.Error(openErr.Err))
		} else {
			log.Error("conversion failed", zap.Error(err))
		}
		return nil, err
	}
	return stats, nil
}

// loadShaders builds the shader table from the configured game directories.
// Within a directory, pk3 archives are added in name order and the loose
// files last, so loose files win. Missing directories are logged and skipped.
// The returned func closes the opened archives.
func loadShaders(cfg *config.Config, log *zap.Logger) (*shader.Table, func(), error) {
	table := shader.NewTable(shader.Options{
		Implicit: cfg.Shaders.Implicit,
		Logger:   log.Named("shader"),
	})

	var archives []*pk3.Archive
	closeAll := func() {
		for _, a := range archives {
			if err := a.Close(); err != nil {
				log.Warn("closing archive", zap.String("archive", a.Path()), zap.Error(err))
			}
		}
	}

	for _, dir := range cfg.Shaders.BasePaths {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			log.Warn("skipping base path", zap.String("dir", dir))
			continue
		}

		paks, err := filepath.Glob(filepath.Join(dir, "*.pk3"))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sort.Strings(paks)
		for _, p := range paks {
			a, err := pk3.Open(p)
			if err != nil {
				log.Warn("skipping archive", zap.String("archive", p), zap.Error(err))
				continue
			}
			archives = append(archives, a)
			table.AddArchive(a)
		}

		if err := table.AddDir(dir); err != nil {
			closeAll()
			return nil, nil, err
		}
		log.Debug("added base path", zap.String("dir", dir), zap.Int("archives", len(paks)))
	}

	if err := table.LoadScripts(); err != nil {
		closeAll()
		return nil, nil, err
	}
	return table, closeAll, nil
}
