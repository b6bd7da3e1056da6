package discovery

import (
	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

// fallbackConfidence is reported when the registry has no profile for the key
// column on either side: the pairing is plausible but unverifiable from
// metadata, so it scores low and validation has to settle it.
const fallbackConfidence = 0.25

// scoreCardinality derives confidence from key-column compatibility: the
// fraction of distinct key values on the join-driving side that match the
// other side, discounted by null prevalence.
func (e *Engine) scoreCardinality(dbc dbctx.Context, pair *datasetPair, p *domain.CardinalityParams) (float64, error) {
	srcProf, err := e.registry.GetColumnProfile(dbc, pair.source.ID, p.KeyColumn)
	if err != nil {
		return 0, err
	}
	tgtProf, err := e.registry.GetColumnProfile(dbc, pair.target.ID, p.KeyColumn)
	if err != nil {
		return 0, err
	}
	if srcProf == nil || tgtProf == nil {
		return fallbackConfidence, nil
	}

	match := keyMatchFraction(srcProf, tgtProf, p.JoinType)
	nullDiscount := 1 - (srcProf.NullFraction+tgtProf.NullFraction)/2
	confidence := clamp01(match * nullDiscount)

	if p.CorrelationType() == domain.TypeWeightedManyToMany && len(p.Weights) == 0 {
		p.Weights = pairWeights(srcProf, tgtProf)
	}
	return confidence, nil
}

// keyMatchFraction estimates distinct-key overlap from value samples when
// both sides carry them, falling back to a distinct-count ratio otherwise.
// The joinType decides which side drives the denominator.
func keyMatchFraction(src, tgt *domain.ColumnProfile, join domain.JoinType) float64 {
	srcSamples := src.Samples()
	tgtSamples := tgt.Samples()

	if len(srcSamples) > 0 && len(tgtSamples) > 0 {
		tgtSet := make(map[string]struct{}, len(tgtSamples))
		for _, v := range tgtSamples {
			tgtSet[v] = struct{}{}
		}
		inter := 0
		for _, v := range srcSamples {
			if _, ok := tgtSet[v]; ok {
				inter++
			}
		}
		switch join {
		case domain.JoinLeft:
			return float64(inter) / float64(len(srcSamples))
		case domain.JoinRight:
			return float64(inter) / float64(len(tgtSamples))
		default:
			union := len(srcSamples) + len(tgtSamples) - inter
			if union == 0 {
				return 0
			}
			return float64(inter) / float64(union)
		}
	}

	if src.DistinctCount == 0 || tgt.DistinctCount == 0 {
		return 0
	}
	lo, hi := src.DistinctCount, tgt.DistinctCount
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(lo) / float64(hi)
}

// pairWeights builds the per-pair weight distribution a weighted_many_to_many
// correlation stores: uniform mass over the sampled key intersection.
func pairWeights(src, tgt *domain.ColumnProfile) map[string]float64 {
	tgtSet := make(map[string]struct{})
	for _, v := range tgt.Samples() {
		tgtSet[v] = struct{}{}
	}
	shared := make([]string, 0)
	for _, v := range src.Samples() {
		if _, ok := tgtSet[v]; ok {
			shared = append(shared, v)
		}
	}
	if len(shared) == 0 {
		return nil
	}
	w := 1 / float64(len(shared))
	out := make(map[string]float64, len(shared))
	for _, v := range shared {
		out[v] = w
	}
	return out
}
