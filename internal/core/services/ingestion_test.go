package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-classifier-service/internal/core/domain"
)

func collect(t *testing.T, table *FeatureTable) []domain.FeatureRecord {
	t.Helper()
	var out []domain.FeatureRecord
	for _, rec := range table.Records() {
		out = append(out, rec)
	}
	return out
}

func TestIngest_KeplerColumns(t *testing.T) {
	svc := NewIngestionService(nil)

	blob := []byte("koi_period,koi_time0bk,koi_duration,koi_depth,koi_prad,koi_teq,koi_insol,koi_model_snr,koi_steff,koi_srad,koi_impact\n" +
		"129.9,170.5,3.2,480,1.17,188,0.29,24.5,3755,0.52,0.3\n" +
		"9.48,170.5,2.95,615.8,2.26,793,93.59,35.8,5455,0.927,0.146\n")

	table, err := svc.Ingest(blob)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Empty(t, table.Missing())

	recs := collect(t, table)
	require.Len(t, recs, 2)
	assert.Equal(t, 129.9, recs[0].Get(domain.FeatureOrbitalPeriod))
	assert.Equal(t, 0.3, recs[0].Get(domain.FeatureImpact))
	assert.Equal(t, 5455.0, recs[1].Get(domain.FeatureStellarTeff))
}

func TestIngest_TESSColumns(t *testing.T) {
	svc := NewIngestionService(nil)

	blob := []byte("pl_orbper,pl_tranmid,pl_trandurh,pl_trandep,pl_rade,pl_eqt,pl_insol,snr_calculated,st_teff,st_rad\n" +
		"2.17,2459000.5,2.0,1200,2.5,1100,300,15,5800,1.0\n")

	table, err := svc.Ingest(blob)
	require.NoError(t, err)
	assert.Equal(t, []domain.FeatureKey{domain.FeatureImpact}, table.Missing())

	recs := collect(t, table)
	assert.Equal(t, 2.17, recs[0].Get(domain.FeatureOrbitalPeriod))
	assert.Equal(t, 15.0, recs[0].Get(domain.FeatureSNR))
	assert.Equal(t, 0.0, recs[0].Get(domain.FeatureImpact))
}

func TestIngest_HeaderNormalization(t *testing.T) {
	svc := NewIngestionService(nil)

	exact, err := svc.Ingest([]byte("koi_period,koi_depth\n10,200\n"))
	require.NoError(t, err)
	messy, err := svc.Ingest([]byte("  KOI_Period ,\tKoi_Depth\n10,200\n"))
	require.NoError(t, err)

	assert.Equal(t, collect(t, exact), collect(t, messy))
	assert.Equal(t, exact.Missing(), messy.Missing())
}

func TestIngest_FullWidthHeader(t *testing.T) {
	svc := NewIngestionService(nil)

	// NFKC folds full-width latin letters onto ASCII.
	table, err := svc.Ingest([]byte("ｋｏｉ_ｐｅｒｉｏｄ\n42\n"))
	require.NoError(t, err)
	assert.Equal(t, 42.0, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestIngest_CanonicalHeaderWinsOverAlias(t *testing.T) {
	svc := NewIngestionService(nil)

	table, err := svc.Ingest([]byte("koi_period,orbital_period,pl_orbper\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestIngest_FirstAliasInListOrderWins(t *testing.T) {
	svc := NewIngestionService(nil)

	// pl_orbper is listed after koi_period in the alias table.
	table, err := svc.Ingest([]byte("pl_orbper,koi_period\n3,1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestIngest_MissingColumnsZeroFilled(t *testing.T) {
	svc := NewIngestionService(nil)

	blob := []byte("koi_period,koi_time0bk,koi_duration,koi_depth,koi_prad,koi_teq,koi_insol,koi_model_snr\n" +
		"1,2,3,4,5,6,7,8\n" +
		"1,2,3,4,5,6,7,8\n" +
		"1,2,3,4,5,6,7,8\n")

	table, err := svc.Ingest(blob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.FeatureKey{domain.FeatureStellarTeff, domain.FeatureStellarRadius, domain.FeatureImpact}, table.Missing())

	recs := collect(t, table)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, 0.0, rec.Get(domain.FeatureStellarTeff))
		assert.Equal(t, 0.0, rec.Get(domain.FeatureStellarRadius))
		assert.Equal(t, 0.0, rec.Get(domain.FeatureImpact))
		assert.Equal(t, 8.0, rec.Get(domain.FeatureSNR))
	}
}

func TestIngest_BadCellsBecomeZero(t *testing.T) {
	svc := NewIngestionService(nil)

	blob := []byte("koi_period,koi_depth,koi_prad\n" +
		"abc,NaN,Inf\n" +
		"1.5\n" +
		",,2\n")

	table, err := svc.Ingest(blob)
	require.NoError(t, err)

	recs := collect(t, table)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.FeatureRecord{}, recs[0])
	assert.Equal(t, 1.5, recs[1].Get(domain.FeatureOrbitalPeriod))
	assert.Equal(t, 0.0, recs[1].Get(domain.FeaturePlanetRadius))
	assert.Equal(t, 2.0, recs[2].Get(domain.FeaturePlanetRadius))
}

func TestIngest_Delimiters(t *testing.T) {
	svc := NewIngestionService(nil)

	for name, blob := range map[string]string{
		"tab":       "koi_period\tkoi_depth\n10\t200\n",
		"semicolon": "koi_period;koi_depth\n10;200\n",
	} {
		t.Run(name, func(t *testing.T) {
			table, err := svc.Ingest([]byte(blob))
			require.NoError(t, err)
			rec := collect(t, table)[0]
			assert.Equal(t, 10.0, rec.Get(domain.FeatureOrbitalPeriod))
			assert.Equal(t, 200.0, rec.Get(domain.FeatureTransitDepth))
		})
	}
}

func TestIngest_CommentsAndBOM(t *testing.T) {
	svc := NewIngestionService(nil)

	blob := append([]byte{0xEF, 0xBB, 0xBF}, []byte("# This file was produced by the NASA Exoplanet Archive\n# COLUMN koi_period: Orbital Period\nkoi_period,koi_depth\n10,200\n")...)
	table, err := svc.Ingest(blob)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 10.0, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestIngest_UTF16(t *testing.T) {
	svc := NewIngestionService(nil)

	text := "koi_period\n7\n"
	blob := []byte{0xFF, 0xFE}
	for _, r := range text {
		blob = append(blob, byte(r), 0)
	}
	table, err := svc.Ingest(blob)
	require.NoError(t, err)
	assert.Equal(t, 7.0, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestIngest_Errors(t *testing.T) {
	svc := NewIngestionService(nil)

	tests := []struct {
		name string
		blob string
		err  error
	}{
		{"empty", "", domain.ErrEmptyOrInvalidTable},
		{"header only", "koi_period,koi_depth\n", domain.ErrEmptyOrInvalidTable},
		{"comments only", "# nothing here\n", domain.ErrEmptyOrInvalidTable},
		{"no recognized columns", "foo,bar\n1,2\n", domain.ErrNoRecognizedColumns},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest([]byte(tt.blob))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestIngest_RecordsRestartable(t *testing.T) {
	svc := NewIngestionService(nil)

	table, err := svc.Ingest([]byte("koi_period\n1\n2\n3\n"))
	require.NoError(t, err)

	first := collect(t, table)
	second := collect(t, table)
	assert.Equal(t, first, second)

	var rows []int
	for i := range table.Records() {
		rows = append(rows, i)
		if i == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, rows)
}

func TestIngest_ExtendedAliases(t *testing.T) {
	aliases := domain.DefaultFeatureAliases()
	require.NoError(t, aliases.Extend(map[string][]string{"orbital_period": {"P_Orb"}}))
	svc := NewIngestionService(aliases)

	table, err := svc.Ingest([]byte("p_orb\n3.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 3.5, collect(t, table)[0].Get(domain.FeatureOrbitalPeriod))
}

func TestRecordFromMap(t *testing.T) {
	svc := NewIngestionService(nil)

	var features map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"Koi_Period": 12.5, "koi_depth": "300", "snr": 9, "unknown": 1, "koi_prad": null}`), &features))

	rec, missing, err := svc.RecordFromMap(features)
	require.NoError(t, err)
	assert.Equal(t, 12.5, rec.Get(domain.FeatureOrbitalPeriod))
	assert.Equal(t, 300.0, rec.Get(domain.FeatureTransitDepth))
	assert.Equal(t, 9.0, rec.Get(domain.FeatureSNR))
	assert.Equal(t, 0.0, rec.Get(domain.FeaturePlanetRadius))
	assert.NotContains(t, missing, domain.FeatureOrbitalPeriod)
	assert.Contains(t, missing, domain.FeatureImpact)
}

func TestRecordFromMap_NoRecognizedKeys(t *testing.T) {
	svc := NewIngestionService(nil)

	_, _, err := svc.RecordFromMap(map[string]any{"foo": 1.0})
	assert.ErrorIs(t, err, domain.ErrInvalidFeatures)

	_, _, err = svc.RecordFromMap(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidFeatures)
}

func TestRecordFromMap_DuplicateKeys(t *testing.T) {
	svc := NewIngestionService(nil)

	_, _, err := svc.RecordFromMap(map[string]any{"Orbital_Period": 3.0, "orbital_period": 4.0})
	assert.ErrorIs(t, err, domain.ErrInvalidFeatures)
	assert.ErrorContains(t, err, "orbital_period")

	// distinct names for one key resolve canonical first, never by map order
	for range 20 {
		rec, _, err := svc.RecordFromMap(map[string]any{"orbital_period": 3.0, "koi_period": 4.0, "pl_orbper": 5.0})
		require.NoError(t, err)
		assert.Equal(t, 3.0, rec.Get(domain.FeatureOrbitalPeriod))
	}
}
