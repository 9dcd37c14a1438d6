package domain

import "fmt"

// ConfigurationError reports setup that makes normalization impossible. It is
// fatal for the run, unlike row-level problems.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Field + ": " + e.Message
}

// PriceIndex maps a calendar month to its price level relative to a fixed
// reference month. It is immutable after BuildPriceIndex.
type PriceIndex struct {
	reference YearMonth
	ratios    map[YearMonth]float64
}

// BuildPriceIndex computes entry/reference ratios for every entry. The
// reference month must be present; entries must be unique per month and
// positive.
func BuildPriceIndex(entries []PriceIndexEntry, reference YearMonth) (*PriceIndex, error) {
	values := make(map[YearMonth]float64, len(entries))
	for _, e := range entries {
		ym := YearMonth{Year: e.Year, Month: e.Month}
		if e.Month < 1 || e.Month > 12 {
			return nil, &ConfigurationError{Field: "price_index", Message: fmt.Sprintf("month out of range in %s", ym)}
		}
		if !(e.Value > 0) {
			return nil, &ConfigurationError{Field: "price_index", Message: fmt.Sprintf("non-positive value %g for %s", e.Value, ym)}
		}
		if _, dup := values[ym]; dup {
			return nil, &ConfigurationError{Field: "price_index", Message: fmt.Sprintf("duplicate entry for %s", ym)}
		}
		values[ym] = e.Value
	}

	base, ok := values[reference]
	if !ok {
		return nil, &ConfigurationError{
			Field:   "reference_month",
			Message: fmt.Sprintf("no price index entry for reference month %s", reference),
		}
	}

	ratios := make(map[YearMonth]float64, len(values))
	for ym, v := range values {
		ratios[ym] = v / base
	}
	return &PriceIndex{reference: reference, ratios: ratios}, nil
}

// Reference returns the month whose ratio is 1.
func (p *PriceIndex) Reference() YearMonth { return p.reference }

// Len returns the number of months in the index.
func (p *PriceIndex) Len() int { return len(p.ratios) }

// Lookup returns the ratio for an exact month match, or missing.
func (p *PriceIndex) Lookup(year, month int) Amount {
	r, ok := p.ratios[YearMonth{Year: year, Month: month}]
	if !ok {
		return Missing()
	}
	return Known(r)
}

// Deflate expresses a nominal amount from (year, month) in reference-month
// terms. Missing input or a month absent from the index yields missing.
func (p *PriceIndex) Deflate(raw Amount, year, month int) Amount {
	return raw.Div(p.Lookup(year, month))
}
