package discovery

import (
	"math"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
)

const (
	// spatialDecayScale is the distance (in the caller's declared units) at
	// which proximity confidence decays by 1/e.
	spatialDecayScale = 1000.0
	// clusterDensityThreshold: records per squared distance unit above which
	// the neighborhood counts as clustered.
	clusterDensityThreshold = 1e-3
)

// scoreSpatial derives confidence from proximity decay weighted by the
// declared spatial weight, and flags clustering when neighbor density inside
// the declared distance exceeds the threshold.
func (e *Engine) scoreSpatial(_ dbctx.Context, pair *datasetPair, p *domain.SpatialParams) (float64, error) {
	distance := *p.Distance
	weight := *p.SpatialWeight

	decay := math.Exp(-distance / spatialDecayScale)
	confidence := clamp01(weight*decay + (1-weight)*decay*decay)

	if distance > 0 {
		area := math.Pi * distance * distance
		density := float64(pair.source.RecordCount+pair.target.RecordCount) / area
		p.Clustered = density > clusterDensityThreshold
	}
	return confidence, nil
}
