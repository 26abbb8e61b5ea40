package shader

import "github.com/go-gl/mathgl/mgl32"

// ImageKind distinguishes image references backed by a real file from
// images the compiler would synthesise.
type ImageKind int

const (
	// StoredImage is a file path found in one of the sources.
	StoredImage ImageKind = iota
	// GeneratedImage has no file: a '*' builtin such as "*white", or a
	// shader whose images could not be found.
	GeneratedImage
)

// String returns a short name for the kind.
func (k ImageKind) String() string {
	switch k {
	case StoredImage:
		return "stored"
	case GeneratedImage:
		return "generated"
	default:
		return "unknown"
	}
}

// builtinMarker prefixes names of images the renderer generates.
const builtinMarker = '*'

// Image is a resolved image reference.
type Image struct {
	Kind ImageKind
	Path string // file path for StoredImage, builtin name or "" for GeneratedImage
}

// classifyImage tags a raw image reference taken from a shader or the
// compiler's defaults.
func classifyImage(ref string) Image {
	if ref == "" || ref[0] == builtinMarker {
		return Image{Kind: GeneratedImage, Path: ref}
	}
	return Image{Kind: StoredImage, Path: ref}
}

// Info is the material information a shader resolves to.
type Info struct {
	Name     string     // shader name as resolved
	Color    mgl32.Vec3 // display colour, components in [0,1]
	Image    Image
	Implicit bool // no script defined the shader
}
