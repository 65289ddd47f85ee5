package raster

// Vec3 is a normalized RGB color sample. Channels are nominally in [0, 1]
// but intermediate sums and differences may leave that range.
type Vec3 [3]float64

// Add returns v + o channel-wise.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o channel-wise.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// AddScaled returns v + o*s without an intermediate vector.
// This is the accumulation step of every convolution.
func (v Vec3) AddScaled(o Vec3, s float64) Vec3 {
	return Vec3{v[0] + o[0]*s, v[1] + o[1]*s, v[2] + o[2]*s}
}
