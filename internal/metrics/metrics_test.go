package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(BatchUnitsTotal.WithLabelValues("error"))
	RecordUnit(false)
	if got := testutil.ToFloat64(BatchUnitsTotal.WithLabelValues("error")); got != before+1 {
		t.Errorf("BatchUnitsTotal{error} = %v, want %v", got, before+1)
	}

	hits := testutil.ToFloat64(ModelCacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(ModelCacheLookups.WithLabelValues("miss"))
	RecordCacheLookup(true)
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	if got := testutil.ToFloat64(ModelCacheLookups.WithLabelValues("hit")); got != hits+2 {
		t.Errorf("hits = %v, want %v", got, hits+2)
	}
	if got := testutil.ToFloat64(ModelCacheLookups.WithLabelValues("miss")); got != misses+1 {
		t.Errorf("misses = %v, want %v", got, misses+1)
	}

	effects := testutil.ToFloat64(EffectsTotal.WithLabelValues("deep", "success"))
	RecordEffect("deep", true)
	if got := testutil.ToFloat64(EffectsTotal.WithLabelValues("deep", "success")); got != effects+1 {
		t.Errorf("EffectsTotal{deep,success} = %v, want %v", got, effects+1)
	}
}
