package domain

import (
	"fmt"
	"time"
)

// RawEventRecord is one row of the NOAA Storm Events table as delivered by the
// source adapter. Damage magnitudes are in the source's nominal unit and are
// scaled by the accompanying scale code.
type RawEventRecord struct {
	ID               string
	BeginDate        string // e.g. "4/18/1950 0:00:00"
	EventType        string // free text, may be empty
	PropertyDamage   float64
	PropertyDamageEx string // scale code, any character
	CropDamage       float64
	CropDamageEx     string
	Fatalities       int
	Injuries         int
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// YearMonthOf returns the calendar month t falls in.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("parse year-month %q: %w", s, err)
	}
	return YearMonthOf(t), nil
}

// PriceIndexEntry is one observation of the monthly price index series.
type PriceIndexEntry struct {
	Year  int
	Month int
	Value float64
}

// ClassifiedRecord is the normalized output for one raw record.
type ClassifiedRecord struct {
	ID              string `json:"id"`
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	Category        string `json:"category"`
	DamagesAdjusted Amount `json:"damages_adjusted"`
	Deaths          int    `json:"deaths"`
	Injuries        int    `json:"injuries"`
}

// YearCategoryAggregate holds per-(year, category) totals.
type YearCategoryAggregate struct {
	Year     int     `json:"year"`
	Category string  `json:"category"`
	Events   int     `json:"events"`
	Damages  float64 `json:"damages"`
	Deaths   int     `json:"deaths"`
	Injuries int     `json:"injuries"`
}

// CategoryAggregate summarizes the yearly sums of a category across every year
// it appears in.
type CategoryAggregate struct {
	Category       string  `json:"category"`
	Events         int     `json:"events"`
	Years          int     `json:"years"`
	MeanDamages    float64 `json:"mean_damages"`
	MedianDamages  float64 `json:"median_damages"`
	MeanDeaths     float64 `json:"mean_deaths"`
	MedianDeaths   float64 `json:"median_deaths"`
	MeanInjuries   float64 `json:"mean_injuries"`
	MedianInjuries float64 `json:"median_injuries"`
}

// RunCounts tallies what happened to the input rows of one run.
type RunCounts struct {
	Read           int            `json:"read"`
	Normalized     int            `json:"normalized"`
	Dropped        map[string]int `json:"dropped,omitempty"` // by reason
	Unclassified   int            `json:"unclassified"`
	MissingDamages int            `json:"missing_damages"`
}

// Report is the result of one batch run.
type Report struct {
	RunID        string                  `json:"run_id"`
	GeneratedAt  time.Time               `json:"generated_at"`
	Reference    YearMonth               `json:"reference"`
	Counts       RunCounts               `json:"counts"`
	YearCategory []YearCategoryAggregate `json:"year_category"`
	Categories   []CategoryAggregate     `json:"categories"`
}

// RowError describes an input row the source adapter could not turn into a
// RawEventRecord.
type RowError struct {
	Line   int
	Reason string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Drop reasons reported in RunCounts.Dropped.
const (
	DropUnparseableDate = "unparseable_date"
	DropMalformedRow    = "malformed_row"
)
