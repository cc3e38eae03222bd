package utils

import (
	"math"
)

const (
	DefaultRating    = 1500.0
	DefaultRatingDev = 350.0
	minRatingDev     = 30.0
)

var q = math.Log(10) / 400 // Glicko scaling constant

type Rating struct {
	Value float64
	Dev   float64
}

func g(rd float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*rd*rd/(math.Pi*math.Pi))
}

func expectedScore(r1, r2, rd2 float64) float64 {
	return 1 / (1 + math.Pow(10, -g(rd2)*(r1-r2)/400))
}

// UpdateRating applies one Glicko rating period. results holds 1 for a win,
// 0.5 for a draw and 0 for a loss against the opponent at the same index.
func UpdateRating(player Rating, opponents []Rating, results []float64) Rating {
	if len(opponents) != len(results) {
		panic("mismatch between opponents and results")
	}
	if len(opponents) == 0 {
		return player
	}
	if player.Value == 0 {
		player.Value = DefaultRating
	}
	if player.Dev == 0 {
		player.Dev = DefaultRatingDev
	}

	var d2, sum float64
	for i, opp := range opponents {
		if opp.Value == 0 {
			opp.Value = DefaultRating
		}
		if opp.Dev == 0 {
			opp.Dev = DefaultRatingDev
		}
		E := expectedScore(player.Value, opp.Value, opp.Dev)
		gRD := g(opp.Dev)
		d2 += q * q * gRD * gRD * E * (1 - E)
		sum += gRD * (results[i] - E)
	}

	d2 = 1 / d2
	newDev := math.Sqrt(1 / (1/(player.Dev*player.Dev) + 1/d2))
	newValue := player.Value + (q/(1/(player.Dev*player.Dev)+1/d2))*sum

	return Rating{
		Value: newValue,
		Dev:   math.Max(newDev, minRatingDev),
	}
}
