// Package histogram computes normalized HSV color histograms and the
// OpenCV-style correlation metric used to compare them. The scene classifier
// is built entirely on these two primitives.
package histogram

import (
	"image"
	"image/color"
	"math"
)

const (
	// HBins and SBins match the source's cv2.calcHist([hsv], [0,1], None, [32,32], [0,180,0,256]) call.
	HBins = 32
	SBins = 32
	// HRange and SRange are the channel ranges: hue in [0,180), saturation in [0,256).
	HRange = 180.0
	SRange = 256.0
)

// Histogram is a normalized 2-D HSV histogram over (H, S), L1-normalized so
// all bins sum to 1.0. A zero-value Histogram (no pixels sampled) reads as
// all-zero and compares as uncorrelated with anything.
type Histogram struct {
	bins [HBins][SBins]float64
}

// Calc computes the normalized HSV histogram of img, matching the source's
// calc_hist: convert to HSV, build a 32x32 (H,S) histogram, L1-normalize.
func Calc(img image.Image) Histogram {
	var h Histogram
	b := img.Bounds()
	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hue, sat := hueSat(img.At(x, y))
			hi := binIndex(hue, HRange, HBins)
			si := binIndex(sat, SRange, SBins)
			h.bins[hi][si]++
			total++
		}
	}
	if total == 0 {
		return h
	}
	for i := 0; i < HBins; i++ {
		for j := 0; j < SBins; j++ {
			h.bins[i][j] /= total
		}
	}
	return h
}

// binIndex maps a value in [0, rangeMax) to a bin in [0, nbins).
func binIndex(v, rangeMax float64, nbins int) int {
	if v < 0 {
		v = 0
	}
	idx := int(v / rangeMax * float64(nbins))
	if idx >= nbins {
		idx = nbins - 1
	}
	return idx
}

// hueSat converts a pixel to OpenCV-convention hue [0,180) and saturation [0,256).
// OpenCV's 8-bit HSV halves the usual 0-360 hue range so it fits a byte.
func hueSat(c color.Color) (hue, sat float64) {
	r, g, bl, _ := c.RGBA()
	// RGBA() returns 16-bit alpha-premultiplied channel values (equal to the
	// straight values for opaque pixels); scale to 8-bit.
	rf := float64(r >> 8)
	gf := float64(g >> 8)
	bf := float64(bl >> 8)

	maxC := max3(rf, gf, bf)
	minC := min3(rf, gf, bf)
	delta := maxC - minC

	if maxC == 0 {
		sat = 0
	} else {
		sat = delta / maxC * 255.0
	}

	if delta == 0 {
		hue = 0
	} else {
		var h60 float64
		switch maxC {
		case rf:
			h60 = 60 * (((gf - bf) / delta))
		case gf:
			h60 = 60*((bf-rf)/delta) + 120
		default:
			h60 = 60*((rf-gf)/delta) + 240
		}
		if h60 < 0 {
			h60 += 360
		}
		hue = h60 / 2.0 // OpenCV convention: H in [0,180)
	}
	return hue, sat
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// CompareCorrel computes the OpenCV HISTCMP_CORREL metric between two
// histograms: the Pearson correlation coefficient over the flattened bins.
// A value of 1.0 means identical distributions; it can range down to -1.0.
func CompareCorrel(a, b Histogram) float64 {
	n := float64(HBins * SBins)
	var sumA, sumB float64
	for i := 0; i < HBins; i++ {
		for j := 0; j < SBins; j++ {
			sumA += a.bins[i][j]
			sumB += b.bins[i][j]
		}
	}
	meanA := sumA / n
	meanB := sumB / n

	var num, denA, denB float64
	for i := 0; i < HBins; i++ {
		for j := 0; j < SBins; j++ {
			da := a.bins[i][j] - meanA
			db := b.bins[i][j] - meanB
			num += da * db
			denA += da * da
			denB += db * db
		}
	}
	den := math.Sqrt(denA * denB)
	if den == 0 {
		return 0
	}
	return num / den
}
