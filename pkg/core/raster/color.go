package raster

import "image/color"

// Opaque is the alpha value written to every produced pixel.
const Opaque = 255

// ToVector converts an 8-bit RGB sample to a normalized color vector.
func ToVector(r, g, b uint8) Vec3 {
	return Vec3{float64(r) / 255, float64(g) / 255, float64(b) / 255}
}

// ToPixel converts a color vector back to an opaque 8-bit RGBA sample.
// Each channel is clamped to [0, 1], scaled by 255 and rounded to nearest.
func ToPixel(v Vec3) [4]uint8 {
	return [4]uint8{toByte(v[0]), toByte(v[1]), toByte(v[2]), Opaque}
}

// ToColor is ToPixel returning a color.NRGBA.
func ToColor(v Vec3) color.NRGBA {
	p := ToPixel(v)
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// toByte clamps a normalized channel to [0, 1] and converts it to uint8.
// NaN maps to 0.
func toByte(c float64) uint8 {
	if !(c > 0) {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return uint8(c*255 + 0.5)
}
