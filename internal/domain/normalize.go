package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseableDate is returned by Normalize when the begin date cannot be read.
var ErrUnparseableDate = errors.New("unparseable begin date")

// beginDateLayouts are tried in order. The first is the StormData export format.
var beginDateLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseBeginDate parses a record's begin date in any of the accepted layouts.
func ParseBeginDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range beginDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, s)
}

// Normalize decodes, deflates, and classifies one record. Records classified
// as CategoryOther are still returned; callers filter them before aggregating.
func Normalize(rec RawEventRecord, index *PriceIndex, classifier Classifier) (ClassifiedRecord, error) {
	begin, err := ParseBeginDate(rec.BeginDate)
	if err != nil {
		return ClassifiedRecord{}, err
	}
	year, month := begin.Year(), int(begin.Month())

	return ClassifiedRecord{
		ID:              rec.ID,
		Year:            year,
		Month:           month,
		Category:        classifier.Classify(rec.EventType),
		DamagesAdjusted: index.Deflate(TotalDamage(rec), year, month),
		Deaths:          rec.Fatalities,
		Injuries:        rec.Injuries,
	}, nil
}

// LatestMonth returns the latest begin-date month among records, skipping
// dates that do not parse. ok is false when no record has a usable date.
func LatestMonth(records []RawEventRecord) (latest YearMonth, ok bool) {
	for _, rec := range records {
		t, err := ParseBeginDate(rec.BeginDate)
		if err != nil {
			continue
		}
		ym := YearMonthOf(t)
		if !ok || latest.Before(ym) {
			latest, ok = ym, true
		}
	}
	return latest, ok
}
