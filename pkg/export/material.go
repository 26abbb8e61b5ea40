package export

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/bsp2obj/pkg/shader"
)

// PathStyle selects the separator written into texture paths.
type PathStyle int

const (
	WindowsPaths PathStyle = iota // backslash, the default
	UnixPaths
)

func (s PathStyle) String() string {
	switch s {
	case WindowsPaths:
		return "windows"
	case UnixPaths:
		return "unix"
	default:
		return fmt.Sprintf("PathStyle(%d)", int(s))
	}
}

// ParsePathStyle parses "windows" or "unix". An empty string is windows.
func ParsePathStyle(s string) (PathStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "windows":
		return WindowsPaths, nil
	case "unix":
		return UnixPaths, nil
	default:
		return WindowsPaths, fmt.Errorf("unknown path style %q", s)
	}
}

// normalizeSeparators rewrites every path separator of p to the given style.
func normalizeSeparators(p string, style PathStyle) string {
	if style == UnixPaths {
		return strings.ReplaceAll(p, "\\", "/")
	}
	return strings.ReplaceAll(p, "/", "\\")
}

// emitMaterials writes one material block per shader of the map, in shader
// table order. Shaders the resolver does not know are logged and left out.
func (c *converter) emitMaterials() {
	c.material.line("%s", generatorComment)

	for i := range c.bsp.Shaders {
		name := c.bsp.Shaders[i].Name
		info, err := c.resolver.Resolve(name)
		if err != nil {
			if !errors.Is(err, shader.ErrNotFound) {
				c.log.Warn("resolving shader", zap.String("shader", name), zap.Error(err))
			} else {
				c.log.Warn("shader not found", zap.String("shader", name))
			}
			c.stats.MissingShaders = append(c.stats.MissingShaders, name)
			continue
		}

		c.material.line("newmtl %s", name)
		c.material.line("Kd %f %f %f", info.Color[0], info.Color[1], info.Color[2])
		c.material.line("map_Kd %s", c.textureName(name, info))
		c.stats.Materials++
	}
}

// textureName returns the diffuse texture written for a material.
func (c *converter) textureName(name string, info shader.Info) string {
	if c.opts.ShadersAsBitmap {
		return name
	}
	tex := info.Image.Path
	if info.Image.Kind == shader.GeneratedImage {
		tex = info.Name + ".tga"
	}
	return normalizeSeparators(tex, c.opts.PathStyle)
}
