package domain

import (
	"fmt"
	"sort"
)

type yearCategoryKey struct {
	year     int
	category string
}

type yearCategorySum struct {
	agg     YearCategoryAggregate
	damages exactSum
}

// Accumulator collects per-(year, category) partial sums. Accumulators built
// over disjoint record sets can be merged in any order with the same result,
// bit for bit, since damages are summed exactly and rounded once.
type Accumulator struct {
	groups map[yearCategoryKey]*yearCategorySum
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{groups: make(map[yearCategoryKey]*yearCategorySum)}
}

// Add folds rec into its group. CategoryOther records are ignored. Missing
// damages do not contribute to the damage sum but the event still counts.
func (a *Accumulator) Add(rec ClassifiedRecord) {
	if rec.Category == CategoryOther {
		return
	}
	g := a.group(rec.Year, rec.Category)
	g.agg.Events++
	if v, ok := rec.DamagesAdjusted.Float(); ok {
		g.damages.add(v)
	}
	g.agg.Deaths += rec.Deaths
	g.agg.Injuries += rec.Injuries
}

// Merge adds every group of other into a.
func (a *Accumulator) Merge(other *Accumulator) {
	for k, o := range other.groups {
		g := a.group(k.year, k.category)
		g.agg.Events += o.agg.Events
		g.damages.merge(o.damages)
		g.agg.Deaths += o.agg.Deaths
		g.agg.Injuries += o.agg.Injuries
	}
}

func (a *Accumulator) group(year int, category string) *yearCategorySum {
	k := yearCategoryKey{year: year, category: category}
	g, ok := a.groups[k]
	if !ok {
		g = &yearCategorySum{agg: YearCategoryAggregate{Year: year, Category: category}}
		a.groups[k] = g
	}
	return g
}

// YearCategory returns the groups sorted by year, then category.
func (a *Accumulator) YearCategory() []YearCategoryAggregate {
	out := make([]YearCategoryAggregate, 0, len(a.groups))
	for _, g := range a.groups {
		y := g.agg
		y.Damages = g.damages.value()
		out = append(out, y)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Summarize reduces the yearly groups to one row per category, sorted by
// category. Means and medians are over the years the category appears in.
func Summarize(yearly []YearCategoryAggregate) []CategoryAggregate {
	type series struct {
		events                    int
		damages, deaths, injuries []float64
	}
	byCategory := make(map[string]*series)
	for _, y := range yearly {
		s, ok := byCategory[y.Category]
		if !ok {
			s = &series{}
			byCategory[y.Category] = s
		}
		s.events += y.Events
		s.damages = append(s.damages, y.Damages)
		s.deaths = append(s.deaths, float64(y.Deaths))
		s.injuries = append(s.injuries, float64(y.Injuries))
	}

	out := make([]CategoryAggregate, 0, len(byCategory))
	for category, s := range byCategory {
		out = append(out, CategoryAggregate{
			Category:       category,
			Events:         s.events,
			Years:          len(s.damages),
			MeanDamages:    mean(s.damages),
			MedianDamages:  median(s.damages),
			MeanDeaths:     mean(s.deaths),
			MedianDeaths:   median(s.deaths),
			MeanInjuries:   mean(s.injuries),
			MedianInjuries: median(s.injuries),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Aggregate groups records by (year, category) and by category.
func Aggregate(records []ClassifiedRecord) ([]YearCategoryAggregate, []CategoryAggregate) {
	acc := NewAccumulator()
	for _, rec := range records {
		acc.Add(rec)
	}
	yearly := acc.YearCategory()
	return yearly, Summarize(yearly)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var total exactSum
	for _, x := range xs {
		total.add(x)
	}
	return total.value() / float64(len(xs))
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Measure selects the yearly statistic a ranking orders by.
type Measure string

const (
	MeasureDamages  Measure = "damages"
	MeasureDeaths   Measure = "deaths"
	MeasureInjuries Measure = "injuries"
)

// ParseMeasure validates a measure name.
func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(s); m {
	case MeasureDamages, MeasureDeaths, MeasureInjuries:
		return m, nil
	default:
		return "", fmt.Errorf("unknown measure %q", s)
	}
}

// Stats returns the (median, mean) of c for m.
func (m Measure) Stats(c CategoryAggregate) (float64, float64) {
	switch m {
	case MeasureDeaths:
		return c.MedianDeaths, c.MeanDeaths
	case MeasureInjuries:
		return c.MedianInjuries, c.MeanInjuries
	default:
		return c.MedianDamages, c.MeanDamages
	}
}

// Rank orders categories by median yearly m, descending. Ties fall back to
// the mean, then the category name. n <= 0 returns every category.
func Rank(categories []CategoryAggregate, m Measure, n int) []CategoryAggregate {
	out := append([]CategoryAggregate(nil), categories...)
	sort.SliceStable(out, func(i, j int) bool {
		mi, ai := m.Stats(out[i])
		mj, aj := m.Stats(out[j])
		if mi != mj {
			return mi > mj
		}
		if ai != aj {
			return ai > aj
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
