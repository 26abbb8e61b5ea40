// Package shader parses Quake 3 shader scripts and resolves shader names to
// material information (display colour and source image).
package shader

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Def is a parsed shader definition.
type Def struct {
	Name         string
	EditorImage  string      // qer_editorimage
	LightImage   string      // q3map_lightimage
	LightRGB     *mgl32.Vec3 // q3map_lightRGB, nil if absent
	StageMaps    []string    // map/clampMap/animMap images in stage order, $-builtins excluded
	SurfaceParms []string
}

// FirstStageMap returns the first stage image, or "" if the shader has none.
func (d *Def) FirstStageMap() string {
	if len(d.StageMaps) == 0 {
		return ""
	}
	return d.StageMaps[0]
}

// HasSurfaceParm reports whether the shader declares the given surfaceparm.
func (d *Def) HasSurfaceParm(parm string) bool {
	for _, p := range d.SurfaceParms {
		if strings.EqualFold(p, parm) {
			return true
		}
	}
	return false
}

// ParseScript parses a .shader text file.
func ParseScript(r io.Reader) ([]Def, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var defs []Def
	var current *Def
	depth := 0
	inBlockComment := false

	for scanner.Scan() {
		line := scanner.Text()

		if inBlockComment {
			idx := strings.Index(line, "*/")
			if idx < 0 {
				continue
			}
			line = line[idx+2:]
			inBlockComment = false
		}

		line, inBlockComment = stripComments(line)
		line = strings.TrimSpace(line)

		// Braces may share a line with directives, e.g. "{ map foo.tga"
		for line != "" {
			switch line[0] {
			case '{':
				depth++
				line = strings.TrimSpace(line[1:])
				continue
			case '}':
				depth--
				if depth == 0 && current != nil {
					defs = append(defs, *current)
					current = nil
				}
				if depth < 0 {
					depth = 0
				}
				line = strings.TrimSpace(line[1:])
				continue
			}

			var content string
			if idx := strings.IndexAny(line, "{}"); idx >= 0 {
				content = strings.TrimSpace(line[:idx])
				line = line[idx:]
			} else {
				content = line
				line = ""
			}
			if content == "" {
				continue
			}

			if depth == 0 {
				current = &Def{Name: strings.Fields(content)[0]}
				continue
			}
			if current != nil {
				parseDirective(current, strings.Fields(content), depth)
			}
		}
	}

	return defs, scanner.Err()
}

// stripComments removes // and /* */ comments from line and reports whether
// a block comment remains open at the end of it.
func stripComments(line string) (string, bool) {
	for {
		slashSlash := strings.Index(line, "//")
		slashStar := strings.Index(line, "/*")

		switch {
		case slashStar >= 0 && (slashSlash < 0 || slashStar < slashSlash):
			end := strings.Index(line[slashStar+2:], "*/")
			if end < 0 {
				return line[:slashStar], true
			}
			line = line[:slashStar] + line[slashStar+2+end+2:]
		case slashSlash >= 0:
			return line[:slashSlash], false
		default:
			return line, false
		}
	}
}

func parseDirective(d *Def, tokens []string, depth int) {
	if len(tokens) == 0 {
		return
	}

	switch strings.ToLower(tokens[0]) {
	case "qer_editorimage":
		if len(tokens) >= 2 && depth == 1 {
			d.EditorImage = tokens[1]
		}
	case "q3map_lightimage":
		if len(tokens) >= 2 && depth == 1 {
			d.LightImage = tokens[1]
		}
	case "q3map_lightrgb":
		if len(tokens) >= 4 && depth == 1 {
			var c mgl32.Vec3
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(tokens[i+1], 32)
				if err != nil {
					return
				}
				c[i] = float32(f)
			}
			d.LightRGB = &c
		}
	case "surfaceparm":
		if len(tokens) >= 2 && depth == 1 {
			d.SurfaceParms = append(d.SurfaceParms, strings.ToLower(tokens[1]))
		}
	case "map", "clampmap":
		if len(tokens) >= 2 && !strings.HasPrefix(tokens[1], "$") {
			d.StageMaps = append(d.StageMaps, tokens[1])
		}
	case "animmap":
		// animMap <freq> <path1> <path2> ...
		for _, p := range tokens[min(2, len(tokens)):] {
			if !strings.HasPrefix(p, "$") {
				d.StageMaps = append(d.StageMaps, p)
			}
		}
	}
}
