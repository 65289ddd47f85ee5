// Package imageio decodes input images into rasters and encodes results.
//
// # Overview
//
// The filter core only ever sees [raster.Image] values. This package sits at
// the edge of the pipeline and converts between files or byte streams and
// rasters:
//
//   - [Read] and [Load] decode PNG, JPEG, GIF, BMP, TIFF and WebP input.
//     EXIF orientation is applied, and alpha is dropped.
//   - [CheckSize] and [ReadBytesLimit] read the image header first and
//     reject inputs above a pixel limit before decoding them.
//   - [Write] and [Save] encode PNG, JPEG, GIF, BMP or TIFF output. The
//     format is picked from the output file extension.
//
// Decoding and encoding are delegated to imaging, with the x/image codecs
// registered for the formats the standard library lacks.
//
// # Errors
//
// Failures carry structured codes from the errors package:
//
//   - IO_ERROR: the file could not be opened, created or renamed
//   - DECODE_ERROR: the bytes are not a supported image
//   - INVALID_INPUT: the image header declares more pixels than allowed
//   - ENCODE_ERROR: the encoder failed
//   - UNSUPPORTED: the output extension has no encoder
//
// # Output
//
// [Save] writes to a temporary file in the destination directory and renames
// it into place, so a failed run never leaves a truncated output behind.
//
// [raster.Image]: github.com/matzehuels/dogstack/pkg/core/raster.Image
package imageio
