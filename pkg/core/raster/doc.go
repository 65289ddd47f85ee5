// Package raster holds the pixel containers shared by the filter stages.
//
// An [Image] is a row-major RGBA8 buffer. Filters read 8-bit samples,
// lift them into normalized [Vec3] color vectors with [ToVector], do their
// arithmetic in float64, and map the result back with [ToPixel]. ToPixel is
// the only float-to-byte conversion in the module: it clamps every channel
// to [0, 1] before scaling, so no stage can wrap a negative difference
// around to a bright byte.
//
// Alpha carries no meaning here. Images produced by this module are always
// opaque.
package raster
