package shader

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for colour averaging
	_ "image/png"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Faultbox/bsp2obj/pkg/encoding"
	"github.com/Faultbox/bsp2obj/pkg/pk3"
	_ "github.com/Faultbox/bsp2obj/pkg/tga"
)

// ErrNotFound is returned by Resolve when a shader has no material information.
var ErrNotFound = errors.New("shader not found")

// DefaultImage is the builtin used when no image of a shader can be found.
const DefaultImage = "*default"

// scriptGlob locates shader scripts inside a source.
const scriptGlob = "scripts/*.shader"

// imageExtensions are tried, in order, when looking up an image reference.
var imageExtensions = []string{".tga", ".jpg", ".png"}

var white = mgl32.Vec3{1, 1, 1}

// Options configures a Table.
type Options struct {
	// Implicit resolves shaders without a script definition to an image
	// named after the shader, the way the map compiler does.
	Implicit bool
	Logger   *zap.Logger
}

// Table holds shader definitions loaded from a list of sources (directories
// or pk3 archives). It is safe for concurrent Resolve calls once loading is done.
type Table struct {
	opts    Options
	log     *zap.Logger
	sources []fs.FS
	defs    map[string]*Def // keyed by normalized shader name

	mu     sync.Mutex
	colors map[string]mgl32.Vec3 // keyed by source index and image path
}

// NewTable returns an empty table.
func NewTable(opts Options) *Table {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		opts:   opts,
		log:    log,
		defs:   make(map[string]*Def),
		colors: make(map[string]mgl32.Vec3),
	}
}

// AddFS appends a source. Later sources override earlier ones.
func (t *Table) AddFS(fsys fs.FS) {
	t.sources = append(t.sources, fsys)
}

// AddDir appends a directory source such as "baseq3".
func (t *Table) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding shader source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding shader source: %s is not a directory", dir)
	}
	t.AddFS(os.DirFS(dir))
	return nil
}

// AddArchive appends a pk3 archive source.
func (t *Table) AddArchive(a *pk3.Archive) {
	t.AddFS(a.FS())
}

// LoadScripts parses the shader scripts of every source in order. A script
// that fails to parse is logged and skipped.
func (t *Table) LoadScripts() error {
	for i, src := range t.sources {
		scripts, err := fs.Glob(src, scriptGlob)
		if err != nil {
			return fmt.Errorf("listing shader scripts: %w", err)
		}
		for _, name := range scripts {
			if err := t.loadScript(src, name); err != nil {
				t.log.Warn("skipping shader script",
					zap.Int("source", i),
					zap.String("script", name),
					zap.Error(err))
			}
		}
	}
	t.log.Debug("shader scripts loaded", zap.Int("shaders", len(t.defs)))
	return nil
}

func (t *Table) loadScript(src fs.FS, name string) error {
	f, err := src.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	defs, err := ParseScript(f)
	if err != nil {
		return err
	}
	for i := range defs {
		t.defs[shaderKey(defs[i].Name)] = &defs[i]
	}
	t.log.Debug("parsed shader script", zap.String("script", name), zap.Int("shaders", len(defs)))
	return nil
}

// Len returns the number of loaded definitions.
func (t *Table) Len() int {
	return len(t.defs)
}

// Lookup returns the script definition of a shader.
func (t *Table) Lookup(name string) (*Def, bool) {
	d, ok := t.defs[shaderKey(name)]
	return d, ok
}

func shaderKey(name string) string {
	return encoding.NormalizePath(encoding.StripExtension(strings.TrimSpace(name)))
}

// Resolve returns the material information of a shader. It returns
// ErrNotFound for empty names, and for names without a script definition
// when implicit shaders are disabled.
func (t *Table) Resolve(name string) (Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Info{}, fmt.Errorf("%w: empty name", ErrNotFound)
	}

	def, ok := t.Lookup(name)
	if !ok && !t.opts.Implicit {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var refs []string
	if def != nil {
		refs = append(refs, def.LightImage, def.EditorImage, def.FirstStageMap())
	}
	refs = append(refs, name)

	info := Info{
		Name:     name,
		Image:    classifyImage(DefaultImage),
		Implicit: def == nil,
	}
	src := -1
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if img := classifyImage(ref); img.Kind == GeneratedImage {
			info.Image = img
			break
		}
		if i, p, found := t.findImage(ref); found {
			info.Image = Image{Kind: StoredImage, Path: p}
			src = i
			break
		}
	}

	switch {
	case def != nil && def.LightRGB != nil:
		info.Color = *def.LightRGB
	case src >= 0:
		info.Color = t.averageColor(src, info.Image.Path)
	default:
		info.Color = white
	}

	return info, nil
}

// findImage looks ref up in the sources, newest first, trying the reference
// as written and then with each known image extension. Directory sources
// are case-sensitive, so each candidate is also tried in lower case.
func (t *Table) findImage(ref string) (int, string, bool) {
	ref = strings.TrimPrefix(strings.ReplaceAll(ref, "\\", "/"), "/")
	base := encoding.StripExtension(ref)

	names := []string{ref}
	for _, ext := range imageExtensions {
		if c := base + ext; c != ref {
			names = append(names, c)
		}
	}
	candidates := append([]string(nil), names...)
	for _, c := range names {
		if lower := strings.ToLower(c); lower != c {
			candidates = append(candidates, lower)
		}
	}

	for i := len(t.sources) - 1; i >= 0; i-- {
		for _, c := range candidates {
			if !fs.ValidPath(c) {
				continue
			}
			if st, err := fs.Stat(t.sources[i], c); err == nil && !st.IsDir() {
				return i, c, true
			}
		}
	}
	return -1, "", false
}

// averageColor returns the mean colour of an image, scaled so its largest
// component is 1. Images that cannot be decoded are white.
func (t *Table) averageColor(src int, p string) mgl32.Vec3 {
	key := fmt.Sprintf("%d:%s", src, p)

	t.mu.Lock()
	c, ok := t.colors[key]
	t.mu.Unlock()
	if ok {
		return c
	}

	c = white
	f, err := t.sources[src].Open(p)
	if err == nil {
		img, _, derr := image.Decode(f)
		f.Close()
		if derr == nil {
			c = normalizeColor(meanColor(img))
		} else {
			t.log.Debug("image not decodable, using white", zap.String("image", p), zap.Error(derr))
		}
	}

	t.mu.Lock()
	t.colors[key] = c
	t.mu.Unlock()
	return c
}

func meanColor(img image.Image) mgl32.Vec3 {
	b := img.Bounds()
	var r, g, bl float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			bl += float64(cb)
			n++
		}
	}
	if n == 0 {
		return white
	}
	scale := 1 / (float64(n) * 0xffff)
	return mgl32.Vec3{float32(r * scale), float32(g * scale), float32(bl * scale)}
}

// normalizeColor scales c so the largest component is 1.
func normalizeColor(c mgl32.Vec3) mgl32.Vec3 {
	m := max(c[0], c[1], c[2])
	if m == 0 {
		return mgl32.Vec3{}
	}
	return c.Mul(1 / m)
}
