package estimate

import "math"

// Calculator is a flat linear price model: hours * rate.
type Calculator struct {
	RatePerHour float64
}

func (c Calculator) Compute(elapsedSeconds float64) PriceQuote {
	hours := roundTo(elapsedSeconds/3600, 2)
	return PriceQuote{
		PrintTimeHours: hours,
		PriceAmount:    hours * c.RatePerHour,
	}
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
