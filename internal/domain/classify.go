package domain

import "strings"

// Canonical event categories.
const (
	CategoryWind          = "wind"
	CategoryRain          = "rain"
	CategoryLightning     = "lightning"
	CategoryHail          = "hail"
	CategoryThunderstorm  = "thunderstorm"
	CategoryCold          = "cold"
	CategoryWinter        = "winter weather/blizzard"
	CategoryFlood         = "flood"
	CategoryStormSurge    = "storm surge/tsunami"
	CategoryRipCurrent    = "rip current/high surf"
	CategoryAvalanche     = "avalanche/slide"
	CategoryTornado       = "tornado"
	CategoryHurricane     = "hurricane"
	CategoryTropicalStorm = "tropical storm/depression"
	CategoryWildfire      = "wildfire"
	CategoryHeat          = "heat"
	CategoryDrought       = "drought"

	// CategoryOther is the residual bucket for labels no rule matches.
	CategoryOther = "other"
)

// Rule assigns Label to any event type containing one of Patterns.
// Patterns are lowercase.
type Rule struct {
	Label    string
	Patterns []string
}

func (r Rule) matches(normalized string) bool {
	for _, p := range r.Patterns {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

// classificationRules is the versioned rule table. Order matters: every rule
// is tested and a later match replaces an earlier one, so "Heavy Rain and
// Flooding" ends up as flood and "Thunderstorm Wind" as thunderstorm.
var classificationRules = []Rule{
	{CategoryWind, []string{"wind", "wnd", "gust"}},
	{CategoryRain, []string{"rain", "precipitation", "precipatation"}},
	{CategoryLightning, []string{"lightning", "ligntning", "lighting"}},
	{CategoryHail, []string{"hail"}},
	{CategoryThunderstorm, []string{"thunderstorm", "tstm"}},
	{CategoryCold, []string{"cold", "wind chill", "windchill", "freeze", "frost", "low temp", "cool", "record low"}},
	{CategoryWinter, []string{"winter", "wintry", "ice", "blizzard", "snow", "freezing rain", "sleet"}},
	{CategoryFlood, []string{"flood", "fld", "rising water", "floood"}},
	{CategoryStormSurge, []string{"storm surge", "tsunami"}},
	{CategoryRipCurrent, []string{"rip current", "surf", "seas"}},
	{CategoryAvalanche, []string{"avalanche", "avalance", "mudslide", "slide", "landslump"}},
	{CategoryTornado, []string{"tornado", "torndao"}},
	{CategoryHurricane, []string{"hurricane", "typhoon"}},
	{CategoryTropicalStorm, []string{"tropical storm", "tropical depression"}},
	{CategoryWildfire, []string{"wildfire", "forest fire", "wild fire", "brush fire", "grass fire"}},
	{CategoryHeat, []string{"heat", "warm", "high temp", "hot", "record high"}},
	{CategoryDrought, []string{"drought"}},
}

// Classifier maps a raw event type to a canonical category.
type Classifier interface {
	Classify(label string) string
}

// RuleClassifier classifies with an ordered rule list.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier returns a classifier over a copy of rules, evaluated in
// order. Later changes to rules do not affect it.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	return &RuleClassifier{rules: copyRules(rules)}
}

// DefaultClassifier uses the built-in rule table.
var DefaultClassifier = NewRuleClassifier(classificationRules)

// Rules returns a copy of the built-in rule table.
func Rules() []Rule {
	return copyRules(classificationRules)
}

func copyRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Label: r.Label, Patterns: append([]string(nil), r.Patterns...)}
	}
	return out
}

// Classify folds over the rules left to right starting from CategoryOther;
// each matching rule overwrites the result, so the last match wins.
func (c *RuleClassifier) Classify(label string) string {
	normalized := strings.ToLower(label)
	category := CategoryOther
	if normalized == "" {
		return category
	}
	for _, r := range c.rules {
		if r.matches(normalized) {
			category = r.Label
		}
	}
	return category
}

// Classify classifies label with the default rule table.
func Classify(label string) string {
	return DefaultClassifier.Classify(label)
}

// Categories returns every label the default rules can produce, in rule order.
func Categories() []string {
	out := make([]string, 0, len(classificationRules))
	for _, r := range classificationRules {
		out = append(out, r.Label)
	}
	return out
}
