package domain

import (
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

func decodeTags(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return normalizeTags(tags)
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	norm := normalizeTags(tags)
	if norm == nil {
		norm = []string{}
	}
	raw, err := json.Marshal(norm)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// normalizeTags trims, deduplicates, and sorts. Set semantics: adding a tag
// that is already present is a no-op at this layer.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
