package discovery

import (
	"strings"

	"github.com/datalinker/correlation-backend/internal/domain"
)

// scoreSemantic derives confidence from schema field-name alignment: each
// source field contributes its best similarity against the target schema,
// counted only when it clears the declared threshold.
func (e *Engine) scoreSemantic(pair *datasetPair, p *domain.SemanticParams) float64 {
	return SchemaAlignment(pair.sourceFields, pair.targetFields, *p.Threshold)
}

// SchemaAlignment is the name-alignment score between two schemas. The
// validation pipeline reuses it as the semantic component of validity.
func SchemaAlignment(sourceFields, targetFields []domain.FieldDef, threshold float64) float64 {
	if len(sourceFields) == 0 || len(targetFields) == 0 {
		return 0
	}

	total := 0.0
	for _, sf := range sourceFields {
		best := 0.0
		for _, tf := range targetFields {
			sim := fieldSimilarity(sf, tf)
			if sim > best {
				best = sim
			}
		}
		if best >= threshold {
			total += best
		}
	}
	return clamp01(total / float64(len(sourceFields)))
}

// fieldSimilarity blends edit-distance and token-overlap name similarity
// with a small bonus for matching declared types.
func fieldSimilarity(a, b domain.FieldDef) float64 {
	sim := nameSimilarity(a.Name, b.Name)
	if sim > 0 && strings.EqualFold(a.Type, b.Type) {
		sim += 0.1
	}
	return clamp01(sim)
}

func nameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	lev := 1 - float64(levenshtein(na, nb))/float64(maxInt(len(na), len(nb)))
	jac := tokenJaccard(a, b)
	return 0.5*lev + 0.5*jac
}

func normalizeName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func tokenJaccard(a, b string) float64 {
	ta := nameTokens(a)
	tb := nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func nameTokens(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
