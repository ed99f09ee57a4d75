package ads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawCandidateString(t *testing.T) {
	c := RawCandidate{
		"name":    "  Acme  ",
		"id":      float64(42),
		"big_id":  float64(123456789012),
		"empty":   "",
		"ignored": []any{"x"},
	}

	assert.Equal(t, "Acme", c.String("name"))
	assert.Equal(t, "42", c.String("id"))
	assert.Equal(t, "123456789012", c.String("big_id"))
	assert.Equal(t, "", c.String("missing"))
	assert.Equal(t, "Acme", c.String("empty", "missing", "name"), "first non-empty wins")
}

func TestRawCandidateInt(t *testing.T) {
	c := RawCandidate{
		"float":  float64(3),
		"int":    7,
		"string": " 11 ",
		"junk":   "nope",
	}

	assert.Equal(t, 3, c.Int("float"))
	assert.Equal(t, 7, c.Int("int"))
	assert.Equal(t, 11, c.Int("string"))
	assert.Equal(t, 0, c.Int("junk"))
	assert.Equal(t, 0, c.Int("missing"))
	assert.Equal(t, 7, c.Int("missing", "int"))
}

func TestRawCandidateBool(t *testing.T) {
	c := RawCandidate{
		"b":   true,
		"s":   "false",
		"n":   "no",
		"bad": "maybe",
	}

	v, ok := c.Bool("b")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = c.Bool("s")
	assert.True(t, ok)
	assert.False(t, v)

	v, ok = c.Bool("n")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = c.Bool("bad")
	assert.False(t, ok)

	_, ok = c.Bool("missing")
	assert.False(t, ok)
}

func TestRawCandidateStrings(t *testing.T) {
	c := RawCandidate{
		"slice": []string{"US", "GB"},
		"anys":  []any{"US", float64(7), ""},
		"csv":   "US, GB , ,DE",
		"blank": "   ",
	}

	assert.Equal(t, []string{"US", "GB"}, c.Strings("slice"))
	assert.Equal(t, []string{"US", "7"}, c.Strings("anys"))
	assert.Equal(t, []string{"US", "GB", "DE"}, c.Strings("csv"))
	assert.Nil(t, c.Strings("blank"))
	assert.Nil(t, c.Strings("missing"))
}
