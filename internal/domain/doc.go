// Package domain normalizes NOAA Storm Events records into comparable,
// inflation-adjusted figures per canonical event category.
//
// # Data Source
//
// Records come from the NOAA Storm Events database export (the "StormData"
// table, 1950 onward). Each row carries a free-text EVTYPE, a begin date, and
// property/crop damage split into a magnitude and a scale code. The monthly
// price index is a CPI series such as FRED CPIAUCSL.
//
// # NOAA Data Conventions
//
// Event type:
//
//	Free text typed by NWS offices over six decades. The same phenomenon
//	appears as "TSTM WIND", "THUNDERSTORM WINDS", "THUNDERSTORM WINS", and so on,
//	with misspellings ("LIGNTNING", "TORNDAO") and combined labels
//	("HEAVY RAIN/FLOODING"). [Classify] maps these to 17 categories.
//
// Damage encoding:
//
//	PROPDMG 25, PROPDMGEXP "K"  →  $25,000
//	Codes h/H=1e2, k/K=1e3, m/M=1e6, B=1e9. Anything else ("", "0".."8",
//	"+", "-", "?") has no documented meaning and decodes to missing unless
//	the magnitude is zero. See [DecodeDamage].
//
// Begin date:
//
//	"M/D/YYYY H:MM:SS", e.g. "4/18/1950 0:00:00". Only year and month are used.
//
// # Classification Order
//
// Rules are evaluated in a fixed order and every match overwrites the running
// category, so the last matching rule wins. "HEAVY RAIN AND FLOODING" matches
// rain and flood and is classified as flood.
//
// # Missing Values
//
// [Amount] carries "could not be determined" explicitly. Two-value arithmetic
// (property + crop, nominal / ratio) propagates missing; group sums skip
// missing contributions and the sum of nothing is zero.
//
// # Deflation
//
// Ratios are entry/reference for a configurable reference month, so a value
// from the reference month deflates to itself. A month absent from the
// index deflates to missing.
package domain
