package domain

// scaleMultipliers maps a damage scale code to its multiplier. Lookup is
// case-sensitive: "b" is not a billion in the source data.
var scaleMultipliers = map[string]float64{
	"h": 1e2,
	"H": 1e2,
	"k": 1e3,
	"K": 1e3,
	"m": 1e6,
	"M": 1e6,
	"B": 1e9,
}

// ScaleMultiplier returns the multiplier for code and whether the code is known.
func ScaleMultiplier(code string) (float64, bool) {
	m, ok := scaleMultipliers[code]
	return m, ok
}

// DecodeDamage converts a (magnitude, scale code) pair to a monetary amount.
// A zero magnitude is always 0, even for unknown codes. A non-zero magnitude
// with a code outside the table ("", "0".."8", "+", "-", "?", ...) is missing.
func DecodeDamage(magnitude float64, code string) Amount {
	if magnitude == 0 {
		return Known(0)
	}
	m, ok := scaleMultipliers[code]
	if !ok {
		return Missing()
	}
	return Known(magnitude * m)
}

// TotalDamage is the property plus crop damage of a record, missing if
// either side is missing.
func TotalDamage(rec RawEventRecord) Amount {
	return DecodeDamage(rec.PropertyDamage, rec.PropertyDamageEx).
		Add(DecodeDamage(rec.CropDamage, rec.CropDamageEx))
}
