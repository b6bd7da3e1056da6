package discovery

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

// scoreStatistical measures association strength between the datasets'
// profiled series. Spearman falls back to rank transform over the same
// series; Kendall uses gonum's tau.
func (e *Engine) scoreStatistical(dbc dbctx.Context, pair *datasetPair, p *domain.StatisticalParams) (float64, error) {
	src, err := e.timeSeries(dbc, pair.source, pair.sourceFields, domain.AggSum)
	if err != nil {
		return 0, err
	}
	tgt, err := e.timeSeries(dbc, pair.target, pair.targetFields, domain.AggSum)
	if err != nil {
		return 0, err
	}
	if len(src) == 0 || len(tgt) == 0 {
		return fallbackConfidence, nil
	}

	n := minInt(len(src), len(tgt))
	if n < minSeriesOverlap {
		return fallbackConfidence, nil
	}
	src, tgt = src[:n], tgt[:n]

	var r float64
	switch p.Test {
	case "kendall":
		r = stat.Kendall(src, tgt, nil)
	case "spearman":
		r = stat.Correlation(ranks(src), ranks(tgt), nil)
	default:
		r = stat.Correlation(src, tgt, nil)
	}
	if math.IsNaN(r) {
		return 0, nil
	}
	return clamp01(math.Abs(r)), nil
}

func (e *Engine) scoreStructural(pair *datasetPair, p *domain.StructuralParams) float64 {
	return SchemaIsomorphism(pair.sourceFields, pair.targetFields, p.MatchTypes)
}

// SchemaIsomorphism measures structural similarity between two schemas:
// positional name+type matches blended with order-free name overlap. The
// validation pipeline reuses it as the structural component of validity.
func SchemaIsomorphism(sourceFields, targetFields []domain.FieldDef, matchTypes bool) float64 {
	if len(sourceFields) == 0 || len(targetFields) == 0 {
		return 0
	}

	positional := 0
	n := minInt(len(sourceFields), len(targetFields))
	for i := 0; i < n; i++ {
		sf, tf := sourceFields[i], targetFields[i]
		if normalizeName(sf.Name) == normalizeName(tf.Name) && (!matchTypes || sf.Type == tf.Type) {
			positional++
		}
	}

	names := make(map[string]struct{}, len(sourceFields))
	for _, f := range sourceFields {
		names[normalizeName(f.Name)] = struct{}{}
	}
	overlap := 0
	for _, f := range targetFields {
		if _, ok := names[normalizeName(f.Name)]; ok {
			overlap++
		}
	}

	size := maxInt(len(sourceFields), len(targetFields))
	return clamp01(0.5*float64(positional)/float64(size) + 0.5*float64(overlap)/float64(size))
}

// scoreFunctional checks a functional-dependency shape: the determinant
// column must be near-unique in the source and its values must reach the
// target. Uniqueness times reach approximates FD support.
func (e *Engine) scoreFunctional(dbc dbctx.Context, pair *datasetPair, p *domain.FunctionalParams) (float64, error) {
	column := p.DeterminantColumn
	if column == "" && len(pair.sourceFields) > 0 {
		column = pair.sourceFields[0].Name
	}
	if column == "" {
		return 0, nil
	}

	srcProf, err := e.registry.GetColumnProfile(dbc, pair.source.ID, column)
	if err != nil {
		return 0, err
	}
	tgtProf, err := e.registry.GetColumnProfile(dbc, pair.target.ID, column)
	if err != nil {
		return 0, err
	}
	if srcProf == nil || tgtProf == nil {
		return fallbackConfidence, nil
	}

	uniqueness := 1.0
	if pair.source.RecordCount > 0 {
		uniqueness = clamp01(float64(srcProf.DistinctCount) / float64(pair.source.RecordCount))
	}
	reach := keyMatchFraction(srcProf, tgtProf, domain.JoinLeft)
	return clamp01(uniqueness * reach), nil
}

// scoreCausal runs a lagged-causality sweep: the best lagged correlation,
// discounted by the contemporaneous one so that simultaneity does not
// masquerade as cause.
func (e *Engine) scoreCausal(dbc dbctx.Context, pair *datasetPair, p *domain.CausalParams) (float64, error) {
	src, err := e.timeSeries(dbc, pair.source, pair.sourceFields, domain.AggSum)
	if err != nil {
		return 0, err
	}
	tgt, err := e.timeSeries(dbc, pair.target, pair.targetFields, domain.AggSum)
	if err != nil {
		return 0, err
	}
	if len(src) == 0 || len(tgt) == 0 {
		return fallbackConfidence, nil
	}

	r0 := math.Abs(lagCorrelation(src, tgt, 0))
	best := 0.0
	for lag := 1; lag <= p.MaxLagDays; lag++ {
		if r := math.Abs(lagCorrelation(src, tgt, lag)); r > best {
			best = r
		}
	}
	return clamp01(best * (1 - r0/2)), nil
}

func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && x[idx[j-1]] > x[idx[j]]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	out := make([]float64, len(x))
	for rank, i := range idx {
		out[i] = float64(rank)
	}
	return out
}
