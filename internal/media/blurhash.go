package media

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// thumbSize bounds the thumbnail a BlurHash is computed from. The hash is a
// low-resolution placeholder, so larger inputs only cost time.
const thumbSize = 64

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Width    int
	Height   int
	BlurHash string
}

// Analyze decodes an image and computes its dimensions and a 4x3 BlurHash.
func Analyze(r io.Reader) (ImageInfo, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()

	hash, err := blurhash.Encode(4, 3, thumbnail(img))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("encode blurhash: %w", err)
	}
	return ImageInfo{Width: b.Dx(), Height: b.Dy(), BlurHash: hash}, nil
}

// thumbnail scales img to fit thumbSize, keeping the aspect ratio.
func thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= thumbSize && h <= thumbSize {
		return img
	}

	var dw, dh int
	if w > h {
		dw, dh = thumbSize, max(1, h*thumbSize/w)
	} else {
		dw, dh = max(1, w*thumbSize/h), thumbSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
