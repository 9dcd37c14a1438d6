package domain

// NewReport assembles a run report from the merged accumulator, stamping it
// with the package clock.
func NewReport(runID string, reference YearMonth, counts RunCounts, acc *Accumulator) Report {
	yearly := acc.YearCategory()
	return Report{
		RunID:        runID,
		GeneratedAt:  clock.Now().UTC(),
		Reference:    reference,
		Counts:       counts,
		YearCategory: yearly,
		Categories:   Summarize(yearly),
	}
}
