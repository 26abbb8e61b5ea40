// Package bsp provides a reader for compiled Quake 3 map files (IBSP).
package bsp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/bsp2obj/pkg/encoding"
)

// BSP format errors.
var (
	ErrInvalidBSPMagic       = errors.New("invalid BSP magic: expected 'IBSP'")
	ErrUnsupportedBSPVersion = errors.New("unsupported BSP version")
	ErrTruncatedBSPData      = errors.New("truncated BSP data")
	ErrLumpOutOfRange        = errors.New("lump out of range")
	ErrBadReference          = errors.New("bad cross reference")
)

const (
	bspMagic       = "IBSP"
	headerSize     = 8 + NumLumps*8
	shaderNameSize = 64
)

// Supported IBSP versions.
const (
	VersionQuake3    int32 = 46
	VersionQuakeLive int32 = 47
)

// Lump indices in the header directory.
const (
	LumpEntities = iota
	LumpShaders
	LumpPlanes
	LumpNodes
	LumpLeafs
	LumpLeafSurfaces
	LumpLeafBrushes
	LumpModels
	LumpBrushes
	LumpBrushSides
	LumpDrawVerts
	LumpDrawIndexes
	LumpFogs
	LumpSurfaces
	LumpLightmaps
	LumpLightGrid
	LumpVisibility
	NumLumps
)

var lumpNames = [NumLumps]string{
	"entities", "shaders", "planes", "nodes", "leafs", "leafsurfaces",
	"leafbrushes", "models", "brushes", "brushsides", "drawverts",
	"drawindexes", "fogs", "surfaces", "lightmaps", "lightgrid", "visibility",
}

// LumpName returns the directory name of lump i.
func LumpName(i int) string {
	if i < 0 || i >= NumLumps {
		return fmt.Sprintf("lump%d", i)
	}
	return lumpNames[i]
}

// Lump is a header directory entry.
type Lump struct {
	Offset int32
	Length int32
}

// SurfaceType tags the geometry kind of a draw surface.
type SurfaceType int32

const (
	SurfaceBad          SurfaceType = 0
	SurfacePlanar       SurfaceType = 1
	SurfacePatch        SurfaceType = 2 // Bezier patch, stored as control points
	SurfaceTriangleSoup SurfaceType = 3
	SurfaceFlare        SurfaceType = 4
	SurfaceFoliage      SurfaceType = 5
)

// String returns the compiler's name for the surface type.
func (t SurfaceType) String() string {
	switch t {
	case SurfaceBad:
		return "MST_BAD"
	case SurfacePlanar:
		return "MST_PLANAR"
	case SurfacePatch:
		return "MST_PATCH"
	case SurfaceTriangleSoup:
		return "MST_TRIANGLE_SOUP"
	case SurfaceFlare:
		return "MST_FLARE"
	case SurfaceFoliage:
		return "MST_FOLIAGE"
	default:
		return fmt.Sprintf("MST_UNKNOWN(%d)", int32(t))
	}
}

// Shader is a shader table entry.
type Shader struct {
	Name         string
	SurfaceFlags int32
	ContentFlags int32
}

// Model is a group of surfaces: model 0 is the world, the rest are
// brush entity submodels.
type Model struct {
	Mins         mgl32.Vec3
	Maxs         mgl32.Vec3
	FirstSurface int32
	NumSurfaces  int32
	FirstBrush   int32
	NumBrushes   int32
}

// Vertex is a draw vertex.
type Vertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
	Lightmap mgl32.Vec2
	Normal   mgl32.Vec3
	Color    [4]uint8 // RGBA
}

// Surface is a draw surface referencing contiguous ranges of the
// vertex and index pools.
type Surface struct {
	ShaderNum      int32
	FogNum         int32
	Type           SurfaceType
	FirstVert      int32
	NumVerts       int32
	FirstIndex     int32
	NumIndexes     int32
	LightmapNum    int32
	LightmapX      int32
	LightmapY      int32
	LightmapWidth  int32
	LightmapHeight int32
	LightmapOrigin mgl32.Vec3
	LightmapVecs   [3]mgl32.Vec3 // S and T unit vectors, then the surface normal
	PatchWidth     int32
	PatchHeight    int32
}

// BSP represents a parsed Quake 3 map.
type BSP struct {
	Version  int32
	Lumps    [NumLumps]Lump
	Entities []*Entity
	Shaders  []Shader
	Models   []Model
	Vertices []Vertex
	Indexes  []int32
	Surfaces []Surface
}

type rawShader struct {
	Name         [shaderNameSize]byte
	SurfaceFlags int32
	ContentFlags int32
}

// Record sizes on disk.
var (
	shaderSize  = binary.Size(rawShader{})
	modelSize   = binary.Size(Model{})
	vertexSize  = binary.Size(Vertex{})
	surfaceSize = binary.Size(Surface{})
)

// ParseBSP parses a BSP file from raw bytes.
func ParseBSP(data []byte) (*BSP, error) {
	if len(data) < 8 {
		return nil, ErrTruncatedBSPData
	}

	if string(data[0:4]) != bspMagic {
		return nil, ErrInvalidBSPMagic
	}

	b := &BSP{
		Version: int32(binary.LittleEndian.Uint32(data[4:8])),
	}

	if b.Version != VersionQuake3 && b.Version != VersionQuakeLive {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBSPVersion, b.Version)
	}

	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: reading lump directory", ErrTruncatedBSPData)
	}
	r := bytes.NewReader(data[8:headerSize])
	if err := binary.Read(r, binary.LittleEndian, &b.Lumps); err != nil {
		return nil, fmt.Errorf("%w: reading lump directory", ErrTruncatedBSPData)
	}

	entityData, err := b.lumpData(data, LumpEntities)
	if err != nil {
		return nil, err
	}
	b.Entities = ParseEntities(encoding.FixedString(entityData))

	if err := b.parseShaders(data); err != nil {
		return nil, err
	}

	if err := readLump(b, data, LumpModels, modelSize, &b.Models); err != nil {
		return nil, err
	}
	if err := readLump(b, data, LumpDrawVerts, vertexSize, &b.Vertices); err != nil {
		return nil, err
	}
	if err := readLump(b, data, LumpDrawIndexes, 4, &b.Indexes); err != nil {
		return nil, err
	}
	if err := readLump(b, data, LumpSurfaces, surfaceSize, &b.Surfaces); err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

// ParseBSPFile loads and parses a BSP file from disk.
func ParseBSPFile(path string) (*BSP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading BSP file: %w", err)
	}
	return ParseBSP(data)
}

// lumpData returns the bytes of lump i after bounds checking its directory entry.
func (b *BSP) lumpData(data []byte, i int) ([]byte, error) {
	l := b.Lumps[i]
	if l.Offset < 0 || l.Length < 0 || int64(l.Offset)+int64(l.Length) > int64(len(data)) {
		return nil, fmt.Errorf("%w: %s (offset %d, length %d, file %d)",
			ErrLumpOutOfRange, LumpName(i), l.Offset, l.Length, len(data))
	}
	return data[l.Offset : l.Offset+l.Length], nil
}

// readLump decodes lump i as a packed array of fixed-size records into out.
func readLump[T any](b *BSP, data []byte, i int, size int, out *[]T) error {
	raw, err := b.lumpData(data, i)
	if err != nil {
		return err
	}
	if len(raw)%size != 0 {
		return fmt.Errorf("%w: %s length %d is not a multiple of %d",
			ErrTruncatedBSPData, LumpName(i), len(raw), size)
	}
	*out = make([]T, len(raw)/size)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, *out); err != nil {
		return fmt.Errorf("%w: reading %s", ErrTruncatedBSPData, LumpName(i))
	}
	return nil
}

func (b *BSP) parseShaders(data []byte) error {
	var raw []rawShader
	if err := readLump(b, data, LumpShaders, shaderSize, &raw); err != nil {
		return err
	}
	b.Shaders = make([]Shader, len(raw))
	for i, s := range raw {
		b.Shaders[i] = Shader{
			Name:         encoding.FixedString(s.Name[:]),
			SurfaceFlags: s.SurfaceFlags,
			ContentFlags: s.ContentFlags,
		}
	}
	return nil
}

// Validate checks that every model and surface references valid ranges
// of the surface, vertex, index and shader tables.
func (b *BSP) Validate() error {
	for i, m := range b.Models {
		if !inRange(m.FirstSurface, m.NumSurfaces, len(b.Surfaces)) {
			return fmt.Errorf("%w: model %d surfaces [%d,+%d) of %d",
				ErrBadReference, i, m.FirstSurface, m.NumSurfaces, len(b.Surfaces))
		}
	}
	for i := range b.Surfaces {
		if err := b.CheckSurface(i); err != nil {
			return err
		}
	}
	return nil
}

// CheckSurface validates the references of surface i, including that every
// index addresses one of the surface's own vertices.
func (b *BSP) CheckSurface(i int) error {
	if i < 0 || i >= len(b.Surfaces) {
		return fmt.Errorf("%w: surface %d of %d", ErrBadReference, i, len(b.Surfaces))
	}
	s := &b.Surfaces[i]
	if !inRange(s.FirstVert, s.NumVerts, len(b.Vertices)) {
		return fmt.Errorf("%w: surface %d vertices [%d,+%d) of %d",
			ErrBadReference, i, s.FirstVert, s.NumVerts, len(b.Vertices))
	}
	if !inRange(s.FirstIndex, s.NumIndexes, len(b.Indexes)) {
		return fmt.Errorf("%w: surface %d indexes [%d,+%d) of %d",
			ErrBadReference, i, s.FirstIndex, s.NumIndexes, len(b.Indexes))
	}
	if s.ShaderNum < 0 || int(s.ShaderNum) >= len(b.Shaders) {
		return fmt.Errorf("%w: surface %d shader %d of %d",
			ErrBadReference, i, s.ShaderNum, len(b.Shaders))
	}
	for j, v := range b.SurfaceIndexes(s) {
		if v < 0 || v >= s.NumVerts {
			return fmt.Errorf("%w: surface %d index %d is %d, surface has %d vertices",
				ErrBadReference, i, j, v, s.NumVerts)
		}
	}
	return nil
}

func inRange(first, count int32, size int) bool {
	return first >= 0 && count >= 0 && int64(first)+int64(count) <= int64(size)
}

// SurfaceVertices returns the vertices of surface s, or nil if its range is invalid.
func (b *BSP) SurfaceVertices(s *Surface) []Vertex {
	if !inRange(s.FirstVert, s.NumVerts, len(b.Vertices)) {
		return nil
	}
	return b.Vertices[s.FirstVert : s.FirstVert+s.NumVerts]
}

// SurfaceIndexes returns the surface-local indexes of surface s, or nil if
// its range is invalid.
func (b *BSP) SurfaceIndexes(s *Surface) []int32 {
	if !inRange(s.FirstIndex, s.NumIndexes, len(b.Indexes)) {
		return nil
	}
	return b.Indexes[s.FirstIndex : s.FirstIndex+s.NumIndexes]
}

// ModelSurfaces returns the surfaces of model m, or nil if its range is invalid.
func (b *BSP) ModelSurfaces(m *Model) []Surface {
	if !inRange(m.FirstSurface, m.NumSurfaces, len(b.Surfaces)) {
		return nil
	}
	return b.Surfaces[m.FirstSurface : m.FirstSurface+m.NumSurfaces]
}

// ShaderName returns the name of shader i and whether i is a valid index.
func (b *BSP) ShaderName(i int32) (string, bool) {
	if i < 0 || int(i) >= len(b.Shaders) {
		return "", false
	}
	return b.Shaders[i].Name, true
}

// CountByType returns the number of surfaces of each type.
func (b *BSP) CountByType() map[SurfaceType]int {
	counts := make(map[SurfaceType]int)
	for _, s := range b.Surfaces {
		counts[s.Type]++
	}
	return counts
}

// World returns the worldspawn entity, or nil if the entity lump is empty.
func (b *BSP) World() *Entity {
	if len(b.Entities) == 0 {
		return nil
	}
	return b.Entities[0]
}
