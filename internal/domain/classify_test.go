package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		label    string
		expected string
	}{
		// Later rules overwrite earlier matches.
		{"Heavy Rain and Flooding", CategoryFlood},
		{"Thunderstorm Wind", CategoryThunderstorm},
		{"TSTM WIND/HAIL", CategoryThunderstorm},
		{"HURRICANE OPAL/HIGH WINDS", CategoryHurricane},
		{"EXTREME WINDCHILL", CategoryCold},
		{"WINTER STORM HIGH WINDS", CategoryWinter},
		{"SNOW/COLD", CategoryWinter},
		{"FREEZING RAIN", CategoryWinter},
		{"HEAT WAVE DROUGHT", CategoryDrought},

		// Single-rule matches, including source misspellings.
		{"HIGH WIND", CategoryWind},
		{"Gusty Winds", CategoryWind},
		{"HEAVY PRECIPATATION", CategoryRain},
		{"Lightning", CategoryLightning},
		{"LIGNTNING", CategoryLightning},
		{"HAIL 1.75", CategoryHail},
		{"FROST/FREEZE", CategoryCold},
		{"HEAVY SNOW", CategoryWinter},
		{"ICE STORM", CategoryWinter},
		{"FLASH FLOOD", CategoryFlood},
		{"FLOOOD", CategoryFlood},
		{"STORM SURGE/TIDE", CategoryStormSurge},
		{"Tsunami", CategoryStormSurge},
		{"Rip Currents", CategoryRipCurrent},
		{"HIGH SURF", CategoryRipCurrent},
		{"LANDSLIDE", CategoryAvalanche},
		{"AVALANCE", CategoryAvalanche},
		{"TORNADO F0", CategoryTornado},
		{"WATERSPOUT/TORNADO", CategoryTornado},
		{"TORNDAO", CategoryTornado},
		{"Hurricane/Typhoon", CategoryHurricane},
		{"TROPICAL STORM GORDON", CategoryTropicalStorm},
		{"Tropical Depression", CategoryTropicalStorm},
		{"WILD/FOREST FIRE", CategoryWildfire},
		{"Excessive Heat", CategoryHeat},
		{"Record Warmth", CategoryHeat},
		{"DROUGHT", CategoryDrought},

		// Residual bucket.
		{"", CategoryOther},
		{"Marine Mishap", CategoryOther},
		{"DUST STORM", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.label))
		})
	}
}

func TestClassify_LastMatchWinsNotFirst(t *testing.T) {
	c := NewRuleClassifier([]Rule{
		{Label: "first", Patterns: []string{"a"}},
		{Label: "second", Patterns: []string{"b"}},
		{Label: "third", Patterns: []string{"zzz"}},
	})

	assert.Equal(t, "second", c.Classify("AB"))
	assert.Equal(t, "first", c.Classify("a only"))
	assert.Equal(t, CategoryOther, c.Classify("nothing"))
}

func TestClassify_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Classify("tornado"), Classify("TORNADO"))
	assert.Equal(t, Classify("tornado"), Classify("ToRnAdO"))
}

func TestCategories(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 17)
	assert.Equal(t, CategoryWind, cats[0])
	assert.Equal(t, CategoryDrought, cats[16])
	assert.NotContains(t, cats, CategoryOther)
}

func TestRules_CallerCannotMutateDefaults(t *testing.T) {
	rules := Rules()
	require.Len(t, rules, 17)
	rules[11].Label = "mutated"
	rules[0].Patterns[0] = "tornado"

	assert.Equal(t, CategoryTornado, Classify("TORNADO"))
	assert.Equal(t, CategoryWind, Rules()[0].Label)
	assert.Equal(t, "wind", Rules()[0].Patterns[0])
}

func TestNewRuleClassifier_CopiesRules(t *testing.T) {
	rules := []Rule{{Label: "first", Patterns: []string{"a"}}}
	c := NewRuleClassifier(rules)
	rules[0].Label = "changed"
	rules[0].Patterns[0] = "z"

	assert.Equal(t, "first", c.Classify("a"))
	assert.Equal(t, CategoryOther, c.Classify("z"))
}
