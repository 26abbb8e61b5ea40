// Package export converts a compiled Quake 3 map into a Wavefront OBJ mesh
// and its companion MTL material library.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/bsp2obj/pkg/bsp"
	"github.com/Faultbox/bsp2obj/pkg/encoding"
	"github.com/Faultbox/bsp2obj/pkg/shader"
)

// ErrWrite is wrapped by errors from writing or closing the output.
var ErrWrite = errors.New("writing export output")

const (
	generatorComment = "# Generated by bsp2obj -format obj"
	lineEnd          = "\r\n"

	meshExt     = ".obj"
	materialExt = ".mtl"
)

// OpenError reports an output file that could not be created.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open failed on %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Resolver resolves a shader name to its material information.
type Resolver interface {
	Resolve(name string) (shader.Info, error)
}

// Options configures an export.
type Options struct {
	// ShadersAsBitmap writes the shader name as the diffuse texture instead
	// of the resolved image path.
	ShadersAsBitmap bool
	PathStyle       PathStyle
	// OutputDir receives the files; empty means next to the BSP.
	OutputDir string
	// Resolver defaults to an implicit shader table with no sources.
	Resolver Resolver
	Logger   *zap.Logger
}

// Names are the identifiers written into the mesh header.
type Names struct {
	Object      string // "o" line
	MaterialLib string // "mtllib" line, the material file name
}

// Stats summarises an export.
type Stats struct {
	Entities         int // entities whose model was written
	SkippedEntities  int // malformed or out of range submodel references
	Surfaces         int // planar and triangle soup surfaces written
	SkippedSurfaces  int // unsupported or invalid surfaces
	Vertices         int
	Faces            int
	MaterialSwitches int
	Materials        int
	MissingShaders   []string
}

// OutputPaths derives the mesh and material file paths from the BSP path.
func OutputPaths(bspPath, outputDir string) (meshPath, materialPath string) {
	stem := encoding.StripExtension(bspPath)
	if outputDir != "" {
		stem = filepath.Join(outputDir, filepath.Base(stem))
	}
	return stem + meshExt, stem + materialExt
}

// ObjectName returns the object name written to the mesh header.
func ObjectName(bspPath string) string {
	return filepath.Base(encoding.StripExtension(bspPath)) + ".bsp"
}

// ConvertFile writes <stem>.obj and <stem>.mtl for the map loaded from bspPath.
// Both files are closed on every path. If either cannot be created an
// *OpenError is returned before anything is written.
func ConvertFile(b *bsp.BSP, bspPath string, opts Options) (stats *Stats, err error) {
	log := opts.logger()
	meshPath, materialPath := OutputPaths(bspPath, opts.OutputDir)

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, &OpenError{Path: opts.OutputDir, Err: err}
		}
	}

	log.Info("writing", zap.String("file", meshPath))
	mesh, err := os.Create(meshPath)
	if err != nil {
		return nil, &OpenError{Path: meshPath, Err: err}
	}
	defer closeOutput(mesh, &err)

	log.Info("writing", zap.String("file", materialPath))
	material, err := os.Create(materialPath)
	if err != nil {
		return nil, &OpenError{Path: materialPath, Err: err}
	}
	defer closeOutput(material, &err)

	names := Names{
		Object:      ObjectName(bspPath),
		MaterialLib: filepath.Base(materialPath),
	}
	return Convert(b, names, mesh, material, opts)
}

func closeOutput(f *os.File, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("%w: closing %s: %v", ErrWrite, f.Name(), cerr)
	}
}

// Convert writes the mesh and material library of b to the given writers.
// Output is buffered and flushed once at the end.
func Convert(b *bsp.BSP, names Names, mesh, material io.Writer, opts Options) (*Stats, error) {
	c := newConverter(b, mesh, material, opts)

	c.mesh.line("o %s", names.Object)
	c.mesh.line("%s", generatorComment)
	c.mesh.line("mtllib %s", names.MaterialLib)

	c.emitMaterials()

	acc := c.walkEntities(accum{vertexBase: 0, lastShader: noShader})
	c.stats.Vertices = acc.vertexBase

	if err := c.material.Flush(); err != nil {
		return nil, fmt.Errorf("%w: material library: %v", ErrWrite, err)
	}
	if err := c.mesh.Flush(); err != nil {
		return nil, fmt.Errorf("%w: mesh: %v", ErrWrite, err)
	}

	c.log.Info("export complete",
		zap.Int("vertices", c.stats.Vertices),
		zap.Int("faces", c.stats.Faces),
		zap.Int("surfaces", c.stats.Surfaces),
		zap.Int("materials", c.stats.Materials),
		zap.Int("missing_shaders", len(c.stats.MissingShaders)))

	return &c.stats, nil
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// converter owns the output buffers and statistics of one export call.
type converter struct {
	bsp      *bsp.BSP
	opts     Options
	resolver Resolver
	log      *zap.Logger
	mesh     textWriter
	material textWriter
	stats    Stats
}

func newConverter(b *bsp.BSP, mesh, material io.Writer, opts Options) *converter {
	r := opts.Resolver
	if r == nil {
		r = shader.NewTable(shader.Options{Implicit: true, Logger: opts.Logger})
	}
	return &converter{
		bsp:      b,
		opts:     opts,
		resolver: r,
		log:      opts.logger(),
		mesh:     textWriter{bufio.NewWriter(mesh)},
		material: textWriter{bufio.NewWriter(material)},
	}
}

// walkEntities exports the model of every entity in scene order. Entity 0
// is always the world (model 0); other entities export the submodel named
// by their "model" key and are skipped when they have none.
func (c *converter) walkEntities(acc accum) accum {
	for i, e := range c.bsp.Entities {
		modelNum := 0
		if i > 0 {
			n, ok, err := e.Submodel()
			if !ok {
				continue
			}
			if err != nil {
				c.log.Warn("skipping entity", zap.Int("entity", i), zap.Error(err))
				c.stats.SkippedEntities++
				continue
			}
			modelNum = n
		}
		if modelNum >= len(c.bsp.Models) {
			c.log.Warn("skipping entity: model out of range",
				zap.Int("entity", i),
				zap.Int("model", modelNum),
				zap.Int("models", len(c.bsp.Models)))
			c.stats.SkippedEntities++
			continue
		}

		// The origin is not applied: submodel vertices are already in world space.
		origin := e.Vector("origin")
		c.log.Debug("exporting model",
			zap.Int("entity", i),
			zap.String("classname", e.Classname()),
			zap.Int("model", modelNum),
			zap.Float32s("origin", origin[:]))

		acc = c.emitModel(&c.bsp.Models[modelNum], modelNum, acc)
		c.stats.Entities++
	}
	return acc
}

// textWriter writes CRLF terminated lines. Errors are sticky in the
// underlying bufio.Writer and reported by Flush.
type textWriter struct {
	*bufio.Writer
}

func (w textWriter) line(format string, args ...any) {
	fmt.Fprintf(w.Writer, format, args...)
	w.WriteString(lineEnd)
}
