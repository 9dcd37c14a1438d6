package domain

import (
	"encoding/json"
	"strconv"
)

// Amount is a monetary value that may be missing. The zero value is missing.
type Amount struct {
	value float64
	known bool
}

// Known wraps a determined value.
func Known(v float64) Amount { return Amount{value: v, known: true} }

// Missing returns the undetermined amount.
func Missing() Amount { return Amount{} }

// Float returns the value and whether it is known.
func (a Amount) Float() (float64, bool) { return a.value, a.known }

// IsMissing reports whether the amount could not be determined.
func (a Amount) IsMissing() bool { return !a.known }

// Add returns a+b. Missing on either side makes the result missing.
func (a Amount) Add(b Amount) Amount {
	if !a.known || !b.known {
		return Missing()
	}
	return Known(a.value + b.value)
}

// Div returns a/b. Missing on either side makes the result missing.
func (a Amount) Div(b Amount) Amount {
	if !a.known || !b.known {
		return Missing()
	}
	return Known(a.value / b.value)
}

func (a Amount) String() string {
	if !a.known {
		return "missing"
	}
	return strconv.FormatFloat(a.value, 'f', -1, 64)
}

// MarshalJSON encodes a missing amount as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.known {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}

// UnmarshalJSON decodes null as missing.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Missing()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Known(v)
	return nil
}

// SumKnown adds the known values and skips missing ones. A sum over nothing,
// or over only missing values, is 0.
func SumKnown(amounts ...Amount) float64 {
	var total exactSum
	for _, a := range amounts {
		if a.known {
			total.add(a.value)
		}
	}
	return total.value()
}
