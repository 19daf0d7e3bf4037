package monitor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxDisplacementSamples bounds the window the mean and deviation are
// computed over, roughly ten minutes at 30 frames per second.
const maxDisplacementSamples = 18000

// DisplacementStats summarizes |torso.x - bed reference| over calibrated
// cycles. Samples counts every calibrated cycle of the session; the other
// fields cover the most recent window.
type DisplacementStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Max     float64 `json:"max"`
}

type displacement struct {
	window []float64
	next   int
	total  int
}

func (d *displacement) add(v float64) {
	if len(d.window) < maxDisplacementSamples {
		d.window = append(d.window, v)
	} else {
		d.window[d.next] = v
		d.next = (d.next + 1) % maxDisplacementSamples
	}
	d.total++
}

func (d *displacement) reset() {
	*d = displacement{window: d.window[:0]}
}

func (d *displacement) stats() DisplacementStats {
	if len(d.window) == 0 {
		return DisplacementStats{}
	}
	mean, std := stat.MeanStdDev(d.window, nil)
	if len(d.window) == 1 {
		std = 0
	}
	return DisplacementStats{
		Samples: d.total,
		Mean:    mean,
		StdDev:  std,
		Max:     floats.Max(d.window),
	}
}
