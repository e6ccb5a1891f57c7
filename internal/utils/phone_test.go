package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+85512345678":       "+85512345678",
		"  +855 12 345 678 ": "+85512345678",
		"85512345678":        "+85512345678",
		"+855\t12\n345678":   "+85512345678",
		"+1 (555) 000-1111":  "+15550001111",
		"":                   "",
		"   ":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{
		"+85512345678", " 855 1234 5678", "++855", "abc", "+", "0 12-34", " +7 900 000 00 00",
	}
	for _, in := range inputs {
		once := NormalizePhone(in)
		assert.Equal(t, once, NormalizePhone(once), "input %q", in)
	}
}

func TestIsE164(t *testing.T) {
	assert.True(t, IsE164("+85512345678"))
	assert.True(t, IsE164("+12345678"))
	assert.False(t, IsE164("85512345678"))
	assert.False(t, IsE164("+1234567"))
	assert.False(t, IsE164("+1234567890123456"))
	assert.False(t, IsE164("+8551234abcd"))
}

func TestPhoneTail(t *testing.T) {
	assert.Equal(t, "5678", PhoneTail("+85512345678", 4))
	assert.Equal(t, "12", PhoneTail("+12", 4))
}
