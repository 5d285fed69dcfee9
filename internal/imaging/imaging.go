// Package imaging holds the pure-Go pixel operations the pipeline needs:
// mirroring, grayscale conversion, face crops, sample normalization and
// frame annotation.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// JPEGQuality is used for both display frames and gallery samples.
const JPEGQuality = 90

// ToRGBA returns img as *image.RGBA with a zero origin, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// Mirror returns a horizontally flipped copy of src. src is left untouched.
func Mirror(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		srcRow := src.Pix[so : so+w*4]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			so := x * 4
			do := (w - 1 - x) * 4
			copy(dstRow[do:do+4], srcRow[so:so+4])
		}
	}
	return dst
}

// Grayscale converts img to a single-channel image with a zero origin.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// Crop returns the part of gray inside r, clipped to the image bounds.
// The result shares pixels with gray and must be treated as read-only.
func Crop(gray *image.Gray, r image.Rectangle) (*image.Gray, error) {
	r = r.Intersect(gray.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("region %v lies outside the frame", r)
	}
	return gray.SubImage(r).(*image.Gray), nil
}

// Normalize resizes src to a size×size grayscale sample with Catmull-Rom
// (bicubic) interpolation. A sample already at the target size is copied as is.
func Normalize(src image.Image, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	b := src.Bounds()
	if b.Dx() == size && b.Dy() == size {
		stddraw.Draw(dst, dst.Bounds(), src, b.Min, stddraw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// DrawRect outlines r on img with the given stroke thickness.
func DrawRect(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	fill := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), // top
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), // left
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		stddraw.Draw(img, e.Intersect(img.Bounds()), fill, image.Point{}, stddraw.Src)
	}
}

// DrawLabel writes text just above the top-left corner of box, keeping it on screen.
func DrawLabel(img *image.RGBA, text string, box image.Rectangle, c color.Color) {
	face := basicfont.Face7x13
	baseline := box.Min.Y - 8
	if ascent := face.Metrics().Ascent.Ceil(); baseline < ascent {
		baseline = ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(box.Min.X, baseline),
	}
	d.DrawString(text)
}

// EncodeJPEG encodes img for display or storage.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
