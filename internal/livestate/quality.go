package livestate

import (
	"encoding/json"
	"strings"
)

// Quality tiers in precedence order, highest first.
const (
	TierUHD = "uhd"
	TierHD  = "hd"
	TierSD  = "sd"
	TierLD  = "ld"
)

// TierPrecedence favours quality over bandwidth.
var TierPrecedence = []string{TierUHD, TierHD, TierSD, TierLD}

// Variant is one quality level of a live stream.
type Variant struct {
	FLV string
	HLS string
}

// URL returns the transport URL used for capture: FLV when present, else HLS.
func (v Variant) URL() string {
	if v.FLV != "" {
		return v.FLV
	}
	return v.HLS
}

// Manifest maps tier name to variant.
type Manifest map[string]Variant

// Selection is the chosen stream.
type Selection struct {
	Tier string `json:"tier"`
	URL  string `json:"url"`
}

// ParseManifest decodes the nested manifest string. Tiers are read from the
// "data" object when the document has one, otherwise from the top level.
// It reports false when raw is not a JSON object.
func ParseManifest(raw string) (Manifest, bool) {
	var top map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &top); err != nil || top == nil {
		return nil, false
	}
	tiers := top
	if data, ok := top["data"].(map[string]any); ok {
		tiers = data
	}

	m := make(Manifest, len(tiers))
	for name, v := range tiers {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		urls, ok := entry["main"].(map[string]any)
		if !ok {
			continue
		}
		var variant Variant
		variant.FLV, _ = urls["flv"].(string)
		variant.HLS, _ = urls["hls"].(string)
		m[name] = variant
	}
	return m, true
}

// SelectStream returns the highest-precedence tier that carries a usable URL.
func SelectStream(m Manifest) (Selection, bool) {
	for _, tier := range TierPrecedence {
		v, ok := m[tier]
		if !ok {
			continue
		}
		if u := strings.TrimSpace(v.URL()); u != "" {
			return Selection{Tier: tier, URL: u}, true
		}
	}
	return Selection{}, false
}
