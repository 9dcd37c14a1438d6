package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []ClassifiedRecord {
	return []ClassifiedRecord{
		{ID: "a", Year: 2000, Category: CategoryFlood, DamagesAdjusted: Known(100), Deaths: 1, Injuries: 2},
		{ID: "b", Year: 2000, Category: CategoryFlood, DamagesAdjusted: Missing(), Deaths: 1},
		{ID: "c", Year: 2001, Category: CategoryFlood, DamagesAdjusted: Known(300), Injuries: 4},
		{ID: "d", Year: 2002, Category: CategoryFlood, DamagesAdjusted: Known(1000)},
		{ID: "e", Year: 2000, Category: CategoryTornado, DamagesAdjusted: Missing(), Deaths: 5},
		{ID: "f", Year: 2000, Category: CategoryOther, DamagesAdjusted: Known(9999), Deaths: 99},
	}
}

func TestAggregate_YearCategory(t *testing.T) {
	yearly, _ := Aggregate(sampleRecords())

	expected := []YearCategoryAggregate{
		{Year: 2000, Category: CategoryFlood, Events: 2, Damages: 100, Deaths: 2, Injuries: 2},
		{Year: 2000, Category: CategoryTornado, Events: 1, Damages: 0, Deaths: 5},
		{Year: 2001, Category: CategoryFlood, Events: 1, Damages: 300, Injuries: 4},
		{Year: 2002, Category: CategoryFlood, Events: 1, Damages: 1000},
	}
	if diff := cmp.Diff(expected, yearly); diff != "" {
		t.Fatalf("year-category mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_Categories(t *testing.T) {
	_, cats := Aggregate(sampleRecords())
	require.Len(t, cats, 2)

	flood := cats[0]
	assert.Equal(t, CategoryFlood, flood.Category)
	assert.Equal(t, 4, flood.Events)
	assert.Equal(t, 3, flood.Years)
	assert.InDelta(t, 1400.0/3, flood.MeanDamages, 1e-9)
	assert.Equal(t, 300.0, flood.MedianDamages)
	assert.InDelta(t, 2.0/3, flood.MeanDeaths, 1e-9)
	assert.Equal(t, 0.0, flood.MedianDeaths)
	assert.Equal(t, 2.0, flood.MedianInjuries)

	tornado := cats[1]
	assert.Equal(t, CategoryTornado, tornado.Category)
	assert.Equal(t, 0.0, tornado.MedianDamages, "all-missing group sums to zero")
	assert.Equal(t, 5.0, tornado.MedianDeaths)
}

func TestAggregate_ExcludesOther(t *testing.T) {
	yearly, cats := Aggregate(sampleRecords())
	for _, y := range yearly {
		assert.NotEqual(t, CategoryOther, y.Category)
	}
	for _, c := range cats {
		assert.NotEqual(t, CategoryOther, c.Category)
	}
}

func TestAggregate_DamageSumMatchesRecords(t *testing.T) {
	records := sampleRecords()
	yearly, _ := Aggregate(records)

	for _, category := range []string{CategoryFlood, CategoryTornado} {
		var fromRecords []Amount
		for _, r := range records {
			if r.Category == category {
				fromRecords = append(fromRecords, r.DamagesAdjusted)
			}
		}
		var fromYearly float64
		for _, y := range yearly {
			if y.Category == category {
				fromYearly += y.Damages
			}
		}
		assert.Equal(t, SumKnown(fromRecords...), fromYearly, category)
	}
}

func TestAccumulator_MergeMatchesSinglePass(t *testing.T) {
	records := sampleRecords()

	left, right := NewAccumulator(), NewAccumulator()
	for i, r := range records {
		if i%2 == 0 {
			left.Add(r)
		} else {
			right.Add(r)
		}
	}
	right.Merge(left)

	single, _ := Aggregate(records)
	if diff := cmp.Diff(single, right.YearCategory()); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	records := sampleRecords()
	reversed := make([]ClassifiedRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	y1, c1 := Aggregate(records)
	y2, c2 := Aggregate(reversed)
	assert.Equal(t, y1, y2)
	assert.Equal(t, c1, c2)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 5.0, median([]float64{5}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, median([]float64{100, 3, 1}))
}

func TestRank(t *testing.T) {
	cats := []CategoryAggregate{
		{Category: CategoryHurricane, MedianDamages: 10, MeanDamages: 5000, MedianDeaths: 1},
		{Category: CategoryFlood, MedianDamages: 300, MeanDamages: 400, MedianDeaths: 9},
		{Category: CategoryTornado, MedianDamages: 300, MeanDamages: 900, MedianDeaths: 40},
		{Category: CategoryHail, MedianDamages: 50, MeanDamages: 50},
	}

	ranked := Rank(cats, MeasureDamages, 0)
	names := make([]string, len(ranked))
	for i, c := range ranked {
		names[i] = c.Category
	}
	assert.Equal(t, []string{CategoryTornado, CategoryFlood, CategoryHail, CategoryHurricane}, names)

	top := Rank(cats, MeasureDeaths, 2)
	require.Len(t, top, 2)
	assert.Equal(t, CategoryTornado, top[0].Category)
	assert.Equal(t, CategoryFlood, top[1].Category)

	assert.Equal(t, CategoryHurricane, cats[0].Category, "input not reordered")
}

func TestParseMeasure(t *testing.T) {
	for _, s := range []string{"damages", "deaths", "injuries"} {
		m, err := ParseMeasure(s)
		require.NoError(t, err)
		assert.Equal(t, Measure(s), m)
	}
	_, err := ParseMeasure("rainfall")
	assert.Error(t, err)
}

func TestNewReport(t *testing.T) {
	fixed := time.Date(2024, 4, 27, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	acc := NewAccumulator()
	for _, r := range sampleRecords() {
		acc.Add(r)
	}
	report := NewReport("run-1", testReference, RunCounts{Read: 6}, acc)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, testReference, report.Reference)
	assert.Len(t, report.YearCategory, 4)
	assert.Len(t, report.Categories, 2)
}

func TestAccumulator_MergeIsExactForFractionalDamages(t *testing.T) {
	records := make([]ClassifiedRecord, 3000)
	for k := range records {
		records[k] = ClassifiedRecord{
			ID: "x", Year: 2011, Category: CategoryTornado,
			DamagesAdjusted: Known(1370 * float64(k) * 226.9 / 113.7),
		}
	}
	single, _ := Aggregate(records)

	for _, parts := range []int{2, 7, 64} {
		accs := make([]*Accumulator, parts)
		for i := range accs {
			accs[i] = NewAccumulator()
		}
		chunk := (len(records) + parts - 1) / parts
		for i, r := range records {
			accs[i/chunk].Add(r)
		}
		merged := NewAccumulator()
		for _, a := range accs {
			merged.Merge(a)
		}
		assert.Equal(t, single, merged.YearCategory(), "parts=%d", parts)
	}
}
