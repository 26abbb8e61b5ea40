package export

import (
	"go.uber.org/zap"

	"github.com/Faultbox/bsp2obj/pkg/bsp"
)

// noShader is the lastShader value before any surface has been written, so
// the first exported surface always selects its material.
const noShader int32 = -1

// accum is the state threaded through the surface fold: the number of
// vertices written so far and the shader of the last exported surface.
type accum struct {
	vertexBase int
	lastShader int32
}

// emitModel writes the surfaces of model modelNum in order.
func (c *converter) emitModel(m *bsp.Model, modelNum int, acc accum) accum {
	surfaces := c.bsp.ModelSurfaces(m)
	if surfaces == nil && m.NumSurfaces != 0 {
		c.log.Warn("skipping model: surface range out of bounds",
			zap.Int("model", modelNum),
			zap.Int32("first_surface", m.FirstSurface),
			zap.Int32("num_surfaces", m.NumSurfaces))
		return acc
	}
	for i := range surfaces {
		acc = c.emitSurface(int(m.FirstSurface)+i, modelNum, acc)
	}
	return acc
}

// emitSurface writes surface surfNum as one OBJ group. Only planar and
// triangle soup surfaces carry explicit triangles; every other kind leaves
// the accumulator untouched.
func (c *converter) emitSurface(surfNum, modelNum int, acc accum) accum {
	s := &c.bsp.Surfaces[surfNum]

	switch s.Type {
	case bsp.SurfacePlanar, bsp.SurfaceTriangleSoup:
	default:
		c.log.Debug("skipping surface",
			zap.Int("surface", surfNum),
			zap.Stringer("type", s.Type))
		c.stats.SkippedSurfaces++
		return acc
	}

	if err := c.bsp.CheckSurface(surfNum); err != nil {
		c.log.Warn("skipping surface", zap.Int("surface", surfNum), zap.Error(err))
		c.stats.SkippedSurfaces++
		return acc
	}

	w := c.mesh
	w.line("g mat%dmodel%dsurf%d", s.ShaderNum, modelNum, surfNum)
	w.line("# SURFACETYPE %s", s.Type)

	if s.ShaderNum != acc.lastShader {
		name, _ := c.bsp.ShaderName(s.ShaderNum)
		w.line("usemtl %s", name)
		acc.lastShader = s.ShaderNum
		c.stats.MaterialSwitches++
	}

	base := acc.vertexBase + 1
	verts := c.bsp.SurfaceVertices(s)
	for i, v := range verts {
		w.line("# vertex %d", base+i)
		w.line("v %f %f %f", v.Position[0], v.Position[1], v.Position[2])
		w.line("vn %f %f %f", v.Normal[0], v.Normal[1], v.Normal[2])
		w.line("vt %f %f", v.TexCoord[0], v.TexCoord[1])
		w.line("# vt %f %f", v.Lightmap[0], v.Lightmap[1])
	}

	// Faces are written a, c, b to flip the winding.
	idx := c.bsp.SurfaceIndexes(s)
	for i := 0; i+2 < len(idx); i += 3 {
		a := int(idx[i]) + base
		b := int(idx[i+1]) + base
		cc := int(idx[i+2]) + base
		w.line("f %[1]d/%[1]d/%[1]d %[2]d/%[2]d/%[2]d %[3]d/%[3]d/%[3]d", a, cc, b)
		c.stats.Faces++
	}

	c.stats.Surfaces++
	acc.vertexBase += len(verts)
	return acc
}
