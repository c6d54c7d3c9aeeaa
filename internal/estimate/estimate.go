package estimate

import (
	"math"
	"sort"
	"strings"
)

// BaseMinutes covers warm-up and bed preparation for every run.
const BaseMinutes = 10

var ratePerMaterial = map[string]float64{
	"PLA":  0.8,
	"PETG": 1.0,
	"ABS":  1.0,
	"TPU":  1.5,
}

// PrintMinutes estimates one run's duration from the part volume in cm3.
// Unknown materials use a rate of 1.0 min/cm3; an empty material means PLA.
func PrintMinutes(volumeCm3 float64, material string) int {
	if material == "" {
		material = "PLA"
	}
	rate, ok := ratePerMaterial[strings.ToUpper(strings.TrimSpace(material))]
	if !ok {
		rate = 1.0
	}
	if volumeCm3 < 0 {
		volumeCm3 = 0
	}
	return int(math.Ceil(BaseMinutes + volumeCm3*rate))
}

// Materials lists the materials with a known rate.
func Materials() []string {
	out := make([]string, 0, len(ratePerMaterial))
	for m := range ratePerMaterial {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
