// Package pkg provides the libraries behind dogstack, a Difference of
// Gaussians image enhancer that stacks its results vertically.
//
// # Overview
//
// The pkg directory is organized into these areas:
//
//  1. [core] - Image math (raster, kernel, blur, dog, stack, markers)
//  2. [imageio] - Decoding and encoding image files
//  3. [pipeline] - Orchestration (load → filter → stack → mark)
//  4. [cache], [history] - Result cache and run records
//  5. [api] - HTTP front end
//  6. [config], [errors], [observability], [buildinfo], [httputil] - Shared infrastructure
//
// # Architecture
//
// The data flow of a run:
//
//	Image files or URLs
//	         ↓
//	    [imageio] package (decode to raster.Image)
//	         ↓
//	    [core/dog] package (blur at sigma and k·sigma, subtract)
//	         ↓
//	    [core/stack] package (vertical, left-aligned canvas)
//	         ↓
//	    [core/markers] package (optional points)
//	         ↓
//	    JPEG/PNG/GIF/BMP/TIFF output
//
// # Quick Start
//
// Filter one image directly:
//
//	import (
//	    "github.com/matzehuels/dogstack/pkg/core/dog"
//	    "github.com/matzehuels/dogstack/pkg/imageio"
//	)
//
//	img, _ := imageio.Load("photo.png")
//	out, _ := dog.DoG(img, 3, 1.6)
//	_ = imageio.Save("edges.jpg", out, 90)
//
// Or run the whole pipeline with caching:
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, logger)
//	inputs, _ := pipeline.LoadInputs(ctx, []string{"a.png", "b.png"})
//	result, _ := runner.Execute(ctx, inputs, pipeline.NewOptions())
//	_ = imageio.Save("output.jpg", result.Image, 90)
package pkg
