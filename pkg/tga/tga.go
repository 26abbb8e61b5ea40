// Package tga decodes Truevision TGA images, the usual texture format of
// Quake 3 content. Importing it registers the decoder with the image package.
package tga

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// Image types.
const (
	TypeTrueColor    = 2
	TypeGray         = 3
	TypeTrueColorRLE = 10
	TypeGrayRLE      = 11
)

const headerSize = 18

// ErrUnsupported is returned for colour-mapped images and unsupported depths.
var ErrUnsupported = errors.New("unsupported TGA image")

// ErrTruncated is returned when the pixel data ends early.
var ErrTruncated = errors.New("TGA data truncated")

func init() {
	// No magic number: match an empty colour map and a supported image type.
	for _, typ := range []byte{TypeTrueColor, TypeGray, TypeTrueColorRLE, TypeGrayRLE} {
		image.RegisterFormat("tga", string([]byte{'?', 0, typ}), Decode, DecodeConfig)
	}
}

type header struct {
	idLength   int
	imageType  byte
	width      int
	height     int
	bpp        int
	descriptor byte
}

func readHeader(r io.Reader) (header, error) {
	var b [headerSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return header{}, fmt.Errorf("%w: header", ErrTruncated)
	}
	h := header{
		idLength:   int(b[0]),
		imageType:  b[2],
		width:      int(b[12]) | int(b[13])<<8,
		height:     int(b[14]) | int(b[15])<<8,
		bpp:        int(b[16]),
		descriptor: b[17],
	}
	if b[1] != 0 {
		return h, fmt.Errorf("%w: colour-mapped", ErrUnsupported)
	}
	switch h.imageType {
	case TypeTrueColor, TypeTrueColorRLE:
		if h.bpp != 24 && h.bpp != 32 {
			return h, fmt.Errorf("%w: %d bit true-colour", ErrUnsupported, h.bpp)
		}
	case TypeGray, TypeGrayRLE:
		if h.bpp != 8 {
			return h, fmt.Errorf("%w: %d bit greyscale", ErrUnsupported, h.bpp)
		}
	default:
		return h, fmt.Errorf("%w: type %d", ErrUnsupported, h.imageType)
	}
	return h, nil
}

// DecodeConfig returns the dimensions of a TGA image without decoding it.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.width, Height: h.height}, nil
}

// Decode reads a TGA image. Rows are stored bottom-up unless bit 5 of the
// descriptor is set.
func Decode(r io.Reader) (image.Image, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if _, err := io.CopyN(io.Discard, r, int64(h.idLength)); err != nil {
		return nil, fmt.Errorf("%w: image id", ErrTruncated)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	bytesPerPixel := h.bpp / 8
	pixels := h.width * h.height
	raw := h.imageType == TypeTrueColor || h.imageType == TypeGray

	// Check the header against the data before allocating. An RLE packet
	// covers at most 128 pixels with 1+bytesPerPixel bytes.
	need := pixels * bytesPerPixel
	if !raw {
		need = (pixels + 127) / 128 * (1 + bytesPerPixel)
	}
	if len(data) < need {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d pixels", ErrTruncated, len(data), h.width, h.height)
	}

	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	p := pixelWriter{img: img, h: h}

	if raw {
		n := pixels * bytesPerPixel
		for i := 0; i < n; i += bytesPerPixel {
			p.put(data[i : i+bytesPerPixel])
		}
		return img, nil
	}

	i := 0
	for !p.done() {
		if i >= len(data) {
			return nil, fmt.Errorf("%w: RLE packet", ErrTruncated)
		}
		packet := data[i]
		i++
		count := int(packet&0x7f) + 1

		if packet&0x80 != 0 {
			if i+bytesPerPixel > len(data) {
				return nil, fmt.Errorf("%w: RLE packet", ErrTruncated)
			}
			px := data[i : i+bytesPerPixel]
			i += bytesPerPixel
			for ; count > 0 && !p.done(); count-- {
				p.put(px)
			}
			continue
		}

		for ; count > 0 && !p.done(); count-- {
			if i+bytesPerPixel > len(data) {
				return nil, fmt.Errorf("%w: raw packet", ErrTruncated)
			}
			p.put(data[i : i+bytesPerPixel])
			i += bytesPerPixel
		}
	}
	return img, nil
}

// pixelWriter stores pixels in file order.
type pixelWriter struct {
	img *image.RGBA
	h   header
	n   int
}

func (p *pixelWriter) done() bool {
	return p.n >= p.h.width*p.h.height
}

func (p *pixelWriter) put(px []byte) {
	x, y := p.n%p.h.width, p.n/p.h.width
	if p.h.descriptor&0x20 == 0 {
		y = p.h.height - 1 - y
	}
	p.n++

	var c color.RGBA
	switch len(px) {
	case 1:
		c = color.RGBA{R: px[0], G: px[0], B: px[0], A: 255}
	case 3:
		c = color.RGBA{R: px[2], G: px[1], B: px[0], A: 255}
	default:
		c = color.RGBA{R: px[2], G: px[1], B: px[0], A: px[3]}
	}
	p.img.SetRGBA(x, y, c)
}
