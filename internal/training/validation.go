package training

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"

	"goqem/internal/errors"
)

// Validation summarizes per-sample absolute deviations of one evaluation pass
type Validation struct {
	Count  int
	Metric float64
	Median float64
	P95    float64
	Max    float64
}

func summarize(deviations []float64) (Validation, error) {
	if len(deviations) == 0 {
		return Validation{}, errors.InvalidInput("validation set is empty")
	}
	data := stats.Float64Data(deviations)
	mean, err := data.Mean()
	if err != nil {
		return Validation{}, errors.Wrap(err, "failed to average deviations")
	}
	median, err := data.Median()
	if err != nil {
		return Validation{}, errors.Wrap(err, "failed to compute median deviation")
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Validation{}, errors.Wrap(err, "failed to compute deviation percentile")
	}
	maxDev, err := data.Max()
	if err != nil {
		return Validation{}, errors.Wrap(err, "failed to compute maximum deviation")
	}
	return Validation{Count: len(deviations), Metric: mean, Median: median, P95: p95, Max: maxDev}, nil
}

func absDeviations(pred, truth []float64, out []float64) []float64 {
	for i := range pred {
		out = append(out, math.Abs(pred[i]-truth[i]))
	}
	return out
}

func logValidation(component string, epoch int, v Validation) {
	log.Info().
		Str("component", component).
		Int("epoch", epoch).
		Int("samples", v.Count).
		Float64("metric", v.Metric).
		Float64("median", v.Median).
		Float64("p95", v.P95).
		Float64("max", v.Max).
		Msg("validation")
}
