package validation

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

const (
	methodPermutation = "permutation_test"
	methodMonteCarlo  = "monte_carlo_overlap"
	methodSchemaOnly  = "schema_analysis"

	minSeriesOverlap   = 3
	maxCounterExamples = 10
)

type evidenceKind int

const (
	kindSchemaOnly evidenceKind = iota
	kindKeyOverlap
	kindSeries
)

// evidence is what a validation run extracts from registry profiles before
// any scoring. All downstream components derive from it deterministically.
type evidence struct {
	kind evidenceKind

	// key-overlap evidence
	matches         []float64
	matchFraction   float64
	hitProbability  float64
	counterExamples []string

	// series evidence
	xs, ys      []float64
	correlation float64

	dataSize   int64
	sampleSize int64
}

func (e *evidence) method() string {
	switch e.kind {
	case kindKeyOverlap:
		return methodMonteCarlo
	case kindSeries:
		return methodPermutation
	default:
		return methodSchemaOnly
	}
}

// gatherEvidence pulls the profile-level observations a correlation's type
// calls for. Cost tracks the profile sample size, never the dataset row
// count.
func (p *Pipeline) gatherEvidence(dbc dbctx.Context, corr *domain.Correlation, source, target *domain.Dataset, params domain.Params) (*evidence, error) {
	ev := &evidence{kind: kindSchemaOnly, dataSize: source.RecordCount + target.RecordCount}

	switch tp := params.(type) {
	case *domain.CardinalityParams:
		return p.keyEvidence(dbc, ev, source, target, tp.KeyColumn, tp.JoinType)
	case *domain.FunctionalParams:
		column := tp.DeterminantColumn
		if column == "" {
			fields, err := source.Fields()
			if err == nil && len(fields) > 0 {
				column = fields[0].Name
			}
		}
		return p.keyEvidence(dbc, ev, source, target, column, domain.JoinLeft)
	case *domain.TemporalParams:
		return p.seriesEvidence(dbc, ev, source, target, *tp.LagDays)
	case *domain.StatisticalParams:
		return p.seriesEvidence(dbc, ev, source, target, 0)
	case *domain.CausalParams:
		return p.bestLagEvidence(dbc, ev, source, target, tp.MaxLagDays)
	default:
		// semantic, structural, spatial: schema metadata is the evidence
		return ev, nil
	}
}

func (p *Pipeline) keyEvidence(dbc dbctx.Context, ev *evidence, source, target *domain.Dataset, column string, join domain.JoinType) (*evidence, error) {
	if column == "" {
		return ev, nil
	}
	srcProf, err := p.registry.GetColumnProfile(dbc, source.ID, column)
	if err != nil {
		return nil, err
	}
	tgtProf, err := p.registry.GetColumnProfile(dbc, target.ID, column)
	if err != nil {
		return nil, err
	}
	if srcProf == nil || tgtProf == nil {
		return ev, nil
	}

	driving, other := srcProf.Samples(), tgtProf.Samples()
	if join == domain.JoinRight {
		driving, other = other, driving
	}
	if len(driving) == 0 || len(other) == 0 {
		return ev, nil
	}

	otherSet := make(map[string]struct{}, len(other))
	for _, v := range other {
		otherSet[v] = struct{}{}
	}

	ev.kind = kindKeyOverlap
	ev.matches = make([]float64, len(driving))
	hits := 0
	for i, v := range driving {
		if _, ok := otherSet[v]; ok {
			ev.matches[i] = 1
			hits++
		} else if len(ev.counterExamples) < maxCounterExamples {
			ev.counterExamples = append(ev.counterExamples, v)
		}
	}
	ev.matchFraction = float64(hits) / float64(len(driving))
	ev.sampleSize = int64(len(driving))

	// chance hit rate under independence, from distinct-count mass
	total := float64(srcProf.DistinctCount + tgtProf.DistinctCount)
	if total > 0 {
		ev.hitProbability = float64(tgtProf.DistinctCount) / total
	} else {
		ev.hitProbability = 0.5
	}
	return ev, nil
}

func (p *Pipeline) seriesEvidence(dbc dbctx.Context, ev *evidence, source, target *domain.Dataset, lag int) (*evidence, error) {
	xs, ys, err := p.pairedSeries(dbc, source, target)
	if err != nil {
		return nil, err
	}
	if xs == nil {
		return ev, nil
	}
	ev.kind = kindSeries
	ev.xs, ev.ys = xs, ys
	ev.correlation = lagCorrelation(xs, ys, lag)
	ev.sampleSize = int64(len(xs))
	return ev, nil
}

func (p *Pipeline) bestLagEvidence(dbc dbctx.Context, ev *evidence, source, target *domain.Dataset, maxLag int) (*evidence, error) {
	xs, ys, err := p.pairedSeries(dbc, source, target)
	if err != nil {
		return nil, err
	}
	if xs == nil {
		return ev, nil
	}
	ev.kind = kindSeries
	ev.xs, ev.ys = xs, ys
	ev.sampleSize = int64(len(xs))
	for lag := 1; lag <= maxLag; lag++ {
		if r := lagCorrelation(xs, ys, lag); math.Abs(r) > math.Abs(ev.correlation) {
			ev.correlation = r
		}
	}
	return ev, nil
}

func (p *Pipeline) pairedSeries(dbc dbctx.Context, source, target *domain.Dataset) ([]float64, []float64, error) {
	xs, err := p.datasetSeries(dbc, source)
	if err != nil {
		return nil, nil, err
	}
	ys, err := p.datasetSeries(dbc, target)
	if err != nil {
		return nil, nil, err
	}
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n < minSeriesOverlap {
		return nil, nil, nil
	}
	return xs[:n], ys[:n], nil
}

func (p *Pipeline) datasetSeries(dbc dbctx.Context, d *domain.Dataset) ([]float64, error) {
	fields, err := d.Fields()
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		prof, err := p.registry.GetColumnProfile(dbc, d.ID, f.Name)
		if err != nil {
			return nil, err
		}
		if prof == nil {
			continue
		}
		if series := prof.Series(); len(series) > 0 {
			return series, nil
		}
	}
	return nil, nil
}

// pValue runs the evidence's significance test. The statistical component of
// validity is its complement. Tests are seeded from the correlation ID so
// repeat runs over unchanged evidence score identically.
func (p *Pipeline) pValue(corr *domain.Correlation, ev *evidence) float64 {
	seed := seedFrom(corr.ID)
	switch ev.kind {
	case kindKeyOverlap:
		return monteCarloPValue(ev.matchFraction, ev.hitProbability, len(ev.matches), p.cfg.Permutations, seed)
	case kindSeries:
		return permutationPValue(ev.xs, ev.ys, ev.correlation, p.cfg.Permutations, seed)
	default:
		// no sampled evidence to test against; neutral contribution
		return 0.5
	}
}

// bootstrapValues is the per-observation vector whose resampled mean drives
// the confidence interval. Series evidence uses standardized cross products,
// whose mean is the Pearson correlation.
func (ev *evidence) bootstrapValues() []float64 {
	switch ev.kind {
	case kindKeyOverlap:
		return ev.matches
	case kindSeries:
		mx, sx := stat.MeanStdDev(ev.xs, nil)
		my, sy := stat.MeanStdDev(ev.ys, nil)
		if sx == 0 || sy == 0 {
			return nil
		}
		out := make([]float64, len(ev.xs))
		for i := range ev.xs {
			out[i] = (ev.xs[i] - mx) / sx * (ev.ys[i] - my) / sy
		}
		return out
	default:
		return nil
	}
}

// conservationError measures how much aggregate mass the mapping loses.
// For key mappings it is the unmatched fraction; for series it is the
// relative difference in summed totals.
func conservationError(ev *evidence) float64 {
	switch ev.kind {
	case kindKeyOverlap:
		return clamp01(1 - ev.matchFraction)
	case kindSeries:
		var sx, sy float64
		for _, v := range ev.xs {
			sx += v
		}
		for _, v := range ev.ys {
			sy += v
		}
		denom := math.Max(math.Abs(sx), math.Abs(sy))
		if denom == 0 {
			return 0
		}
		return clamp01(math.Abs(sx-sy) / denom)
	default:
		return 0
	}
}

// testAccuracy evaluates the relationship on the held-out tail of the
// evidence that the significance test never saw.
func (p *Pipeline) testAccuracy(ev *evidence) float64 {
	switch ev.kind {
	case kindKeyOverlap:
		tail := holdoutTail(ev.matches, p.cfg.HoldoutFraction)
		if len(tail) == 0 {
			return ev.matchFraction
		}
		sum := 0.0
		for _, v := range tail {
			sum += v
		}
		return sum / float64(len(tail))
	case kindSeries:
		xt := holdoutTail(ev.xs, p.cfg.HoldoutFraction)
		yt := holdoutTail(ev.ys, p.cfg.HoldoutFraction)
		if len(xt) >= minSeriesOverlap {
			if r := stat.Correlation(xt, yt, nil); !math.IsNaN(r) {
				return clamp01(math.Abs(r))
			}
		}
		return clamp01(math.Abs(ev.correlation))
	default:
		return 0.5
	}
}

func holdoutTail(values []float64, fraction float64) []float64 {
	n := int(math.Round(float64(len(values)) * fraction))
	if n <= 0 || n > len(values) {
		return nil
	}
	return values[len(values)-n:]
}

func lagCorrelation(x, y []float64, lag int) float64 {
	if lag < 0 || lag >= len(y) {
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

func seedFrom(id [16]byte) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
