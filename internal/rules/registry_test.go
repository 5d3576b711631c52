package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqmpipeline/dqm/internal/model"
)

func TestMapParserToRules(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.MapParserToRules("invalid_parser")
	assert.ErrorIs(t, err, model.ErrMalformedConfig)

	b, err := reg.MapParserToRules(ParserStr)
	require.NoError(t, err)
	assert.Equal(t, ParserStr, b.ParserName())
	assert.Equal(t, TextRules().Names(), b.RuleNames())

	for _, name := range []string{ParserInt, ParserFloat} {
		b, err := reg.MapParserToRules(name)
		require.NoError(t, err)
		assert.Equal(t, []string{"is_not_approx_zero", "is_not_negative", "is_within_strict_int_range"}, b.RuleNames())
	}

	assert.Equal(t, []string{ParserFloat, ParserInt, ParserStr}, reg.Parsers())
}

func TestGenerateSelectedRulesErrors(t *testing.T) {
	cases := map[string][]model.RuleConfig{
		"empty rule name":  {{Rule: ""}},
		"unknown rule":     {{Rule: "does_not_exist"}},
		"wrong rule group": {{Rule: "search_regex", Args: map[string]interface{}{"regex": "x"}}},
		"empty rule list":  {},
		"bad arguments":    {{Rule: "is_not_negative", Args: map[string]interface{}{"min": 1}}},
	}
	for name, cfgs := range cases {
		_, err := GenerateSelectedRules(cfgs, NumericRules[int64]())
		assert.ErrorIs(t, err, model.ErrMalformedConfig, name)
	}
}

func TestGenerateSelectedRulesWithArgs(t *testing.T) {
	selected, err := GenerateSelectedRules([]model.RuleConfig{
		{Rule: "is_within_strict_int_range", Args: map[string]interface{}{"lower_bound": 100, "upper_bound": 200}},
	}, NumericRules[int64]())
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "is_within_strict_int_range", selected[0].Name)
	assert.Equal(t, map[string]interface{}{"lower_bound": 100, "upper_bound": 200}, selected[0].Params)

	msg, err := selected[0].Check(150)
	require.NoError(t, err)
	assert.Empty(t, msg)
	msg, _ = selected[0].Check(300)
	assert.Contains(t, msg, "range")
}

func TestGenerateSelectedRulesTextWithArgs(t *testing.T) {
	selected, err := GenerateSelectedRules([]model.RuleConfig{
		{Rule: "search_regex", Args: map[string]interface{}{"regex": "testpattern"}},
		{Rule: "is_email"},
	}, TextRules())
	require.NoError(t, err)
	require.Len(t, selected, 2)

	msg, _ := selected[0].Check("otherpattern")
	assert.Empty(t, msg)
	msg, _ = selected[0].Check("testpattern")
	assert.NotEmpty(t, msg)
	assert.Equal(t, "is_email", selected[1].Name)
}

func TestBinderBindErasesTypes(t *testing.T) {
	reg := NewRegistry()
	col, err := reg.Bind(model.ColumnConfig{
		Column: "price",
		Parser: ParserInt,
		Rules:  []model.RuleConfig{{Rule: "is_not_negative"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ParserInt, col.ParserName)

	v, err := col.Parse("-3")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), v)

	msg, err := col.Rules[0].Check(v)
	require.NoError(t, err)
	assert.Equal(t, "Value is a negative number.", msg)

	_, err = col.Rules[0].Check("not an int64")
	assert.Error(t, err)

	_, err = col.Parse("x")
	assert.Error(t, err)
}
