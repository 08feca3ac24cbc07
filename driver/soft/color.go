package soft

import "github.com/chewxy/math32"

func unorm(b byte) float32 { return float32(b) / 255 }

func toUnorm(v float32) byte {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

// toSRGB applies the sRGB transfer function to a linear value.
func toSRGB(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math32.Pow(v, 1/2.4) - 0.055
}

// toLinear inverts toSRGB.
func toLinear(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math32.Pow((v+0.055)/1.055, 2.4)
}
