package discovery

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

const (
	seasonalPeriod      = 7
	seasonalMinAutocorr = 0.5
	trendMinCorrelation = 0.5
	minSeriesOverlap    = 3
)

// scoreTemporal derives confidence from the lag-correlation between the two
// datasets' aggregated time series at the declared offset. Seasonality and
// trend flags are recorded on the parameters when detected.
func (e *Engine) scoreTemporal(dbc dbctx.Context, pair *datasetPair, p *domain.TemporalParams) (float64, error) {
	src, err := e.timeSeries(dbc, pair.source, pair.sourceFields, p.Aggregation)
	if err != nil {
		return 0, err
	}
	tgt, err := e.timeSeries(dbc, pair.target, pair.targetFields, p.Aggregation)
	if err != nil {
		return 0, err
	}
	if len(src) == 0 || len(tgt) == 0 {
		return fallbackConfidence, nil
	}

	r := lagCorrelation(src, tgt, *p.LagDays)
	p.Seasonal = math.Abs(autocorrelation(src, seasonalPeriod)) >= seasonalMinAutocorr
	p.Trending = math.Abs(trendCorrelation(src)) >= trendMinCorrelation

	return clamp01(math.Abs(r)), nil
}

// timeSeries finds the first profiled time-axis column with a series sample.
// The aggregation picks the normalization: sums stay raw, means are
// standardized, counts collapse to presence.
func (e *Engine) timeSeries(dbc dbctx.Context, d *domain.Dataset, fields []domain.FieldDef, agg domain.Aggregation) ([]float64, error) {
	for _, f := range fields {
		prof, err := e.registry.GetColumnProfile(dbc, d.ID, f.Name)
		if err != nil {
			return nil, err
		}
		if prof == nil {
			continue
		}
		series := prof.Series()
		if len(series) == 0 {
			continue
		}
		return aggregateSeries(series, agg), nil
	}
	return nil, nil
}

func aggregateSeries(series []float64, agg domain.Aggregation) []float64 {
	switch agg {
	case domain.AggMean:
		mean, std := stat.MeanStdDev(series, nil)
		if std == 0 {
			return series
		}
		out := make([]float64, len(series))
		for i, v := range series {
			out[i] = (v - mean) / std
		}
		return out
	case domain.AggCount:
		out := make([]float64, len(series))
		for i, v := range series {
			if v != 0 {
				out[i] = 1
			}
		}
		return out
	default:
		return series
	}
}

// lagCorrelation is the Pearson correlation of x against y shifted forward
// by lag periods.
func lagCorrelation(x, y []float64, lag int) float64 {
	if lag >= len(y) {
		return 0
	}
	y = y[lag:]
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < minSeriesOverlap {
		return 0
	}
	r := stat.Correlation(x[:n], y[:n], nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func autocorrelation(x []float64, period int) float64 {
	return lagCorrelation(x, x, period)
}

func trendCorrelation(x []float64) float64 {
	if len(x) < minSeriesOverlap {
		return 0
	}
	idx := make([]float64, len(x))
	for i := range idx {
		idx[i] = float64(i)
	}
	r := stat.Correlation(idx, x, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}
