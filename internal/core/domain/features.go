package domain

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeatureKey is one of the canonical measurement names used internally,
// independent of any upstream catalog's column naming.
type FeatureKey string

const (
	FeatureOrbitalPeriod   FeatureKey = "orbital_period"
	FeatureTransitEpoch    FeatureKey = "transit_epoch"
	FeatureTransitDuration FeatureKey = "transit_duration"
	FeatureTransitDepth    FeatureKey = "transit_depth"
	FeaturePlanetRadius    FeatureKey = "planet_radius"
	FeatureEqTemp          FeatureKey = "eq_temp"
	FeatureInsol           FeatureKey = "insol"
	FeatureSNR             FeatureKey = "snr"
	FeatureStellarTeff     FeatureKey = "steff"
	FeatureStellarRadius   FeatureKey = "srad"
	FeatureImpact          FeatureKey = "impact"
)

// NumFeatures is the size of every canonical feature record.
const NumFeatures = 11

// CanonicalFeatures lists the canonical keys in record order. Artifacts that
// take positional input (ONNX) expect this order.
var CanonicalFeatures = [NumFeatures]FeatureKey{
	FeatureOrbitalPeriod,
	FeatureTransitEpoch,
	FeatureTransitDuration,
	FeatureTransitDepth,
	FeaturePlanetRadius,
	FeatureEqTemp,
	FeatureInsol,
	FeatureSNR,
	FeatureStellarTeff,
	FeatureStellarRadius,
	FeatureImpact,
}

// FeatureIndex returns the record position of key.
func FeatureIndex(key FeatureKey) (int, bool) {
	for i, k := range CanonicalFeatures {
		if k == key {
			return i, true
		}
	}
	return -1, false
}

// FeatureRecord holds one value per canonical key, in CanonicalFeatures order.
type FeatureRecord [NumFeatures]float64

// Get returns the value stored for key, or 0 for a non-canonical key.
func (r FeatureRecord) Get(key FeatureKey) float64 {
	if i, ok := FeatureIndex(key); ok {
		return r[i]
	}
	return 0
}

// Set stores v under key. Non-canonical keys are ignored.
func (r *FeatureRecord) Set(key FeatureKey, v float64) {
	if i, ok := FeatureIndex(key); ok {
		r[i] = v
	}
}

// Map renders the record keyed by canonical name.
func (r FeatureRecord) Map() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, k := range CanonicalFeatures {
		out[string(k)] = r[i]
	}
	return out
}

// ============================================================================
// Feature Alias Table
// ============================================================================

// FeatureAliasMap maps a canonical key to the ordered list of alternate column
// names used by upstream catalogs. It is built once at startup and only read
// afterwards.
type FeatureAliasMap map[FeatureKey][]string

// DefaultFeatureAliases covers the Kepler KOI and TESS TOI cumulative tables.
func DefaultFeatureAliases() FeatureAliasMap {
	return FeatureAliasMap{
		FeatureOrbitalPeriod:   {"koi_period", "pl_orbper", "period"},
		FeatureTransitEpoch:    {"koi_time0bk", "pl_tranmid", "koi_time0", "epoch"},
		FeatureTransitDuration: {"koi_duration", "pl_trandurh", "duration"},
		FeatureTransitDepth:    {"koi_depth", "pl_trandep", "depth"},
		FeaturePlanetRadius:    {"koi_prad", "pl_rade", "prad"},
		FeatureEqTemp:          {"koi_teq", "pl_eqt", "teq"},
		FeatureInsol:           {"koi_insol", "pl_insol"},
		FeatureSNR:             {"koi_model_snr", "snr_calculated", "model_snr"},
		FeatureStellarTeff:     {"koi_steff", "st_teff", "teff"},
		FeatureStellarRadius:   {"koi_srad", "st_rad"},
		FeatureImpact:          {"koi_impact", "pl_imppar"},
	}
}

// Resolve returns the canonical key for a normalized column name.
// A canonical name always resolves to itself.
func (m FeatureAliasMap) Resolve(column string) (FeatureKey, bool) {
	for _, k := range CanonicalFeatures {
		if string(k) == column {
			return k, true
		}
	}
	for _, k := range CanonicalFeatures {
		if slices.Contains(m[k], column) {
			return k, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the map.
func (m FeatureAliasMap) Clone() FeatureAliasMap {
	out := make(FeatureAliasMap, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Extend appends alternates for each canonical key, skipping duplicates.
// Alternates are normalized the same way ingestion normalizes headers.
func (m FeatureAliasMap) Extend(extra map[string][]string) error {
	for key, alts := range extra {
		fk := FeatureKey(strings.ToLower(strings.TrimSpace(key)))
		if _, ok := FeatureIndex(fk); !ok {
			return fmt.Errorf("alias file: unknown canonical feature %q", key)
		}
		for _, alt := range alts {
			alt = strings.ToLower(strings.TrimSpace(alt))
			if alt == "" || slices.Contains(m[fk], alt) {
				continue
			}
			m[fk] = append(m[fk], alt)
		}
	}
	return nil
}

// LoadFeatureAliases returns the default table extended with the YAML file at
// path. An empty path yields the defaults.
//
//	orbital_period: [per, p_orb]
//	snr: [snr_est]
func LoadFeatureAliases(path string) (FeatureAliasMap, error) {
	aliases := DefaultFeatureAliases()
	if path == "" {
		return aliases, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var extra map[string][]string
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}
	if err := aliases.Extend(extra); err != nil {
		return nil, err
	}
	return aliases, nil
}
