package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"5511999990000", true},
		{"1199999000", true},
		{"551199999", false},         // too short
		{"5511999990000123456", false}, // too long
		{"5511999990000@s.whatsapp.net", false},
		{"device:42", false},
		{"", false},
		{"55 11 99999", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidPhone(tt.input))
		})
	}
}

func TestExtractPhone(t *testing.T) {
	t.Run("strips transport suffix", func(t *testing.T) {
		phone, ok := ExtractPhone("5511999990000@s.whatsapp.net")
		assert.True(t, ok)
		assert.Equal(t, "5511999990000", phone)
	})

	t.Run("strips formatting", func(t *testing.T) {
		phone, ok := ExtractPhone("+55 (11) 99999-0000")
		assert.True(t, ok)
		assert.Equal(t, "5511999990000", phone)
	})

	t.Run("opaque id yields nothing", func(t *testing.T) {
		_, ok := ExtractPhone("device:42")
		assert.False(t, ok)
	})
}

func TestIsMenuToken(t *testing.T) {
	assert.True(t, IsMenuToken("0"))
	assert.True(t, IsMenuToken("12"))
	assert.True(t, IsMenuToken(" 3 "))
	assert.False(t, IsMenuToken("1234"))
	assert.False(t, IsMenuToken("1a"))
	assert.False(t, IsMenuToken("oi"))
	assert.False(t, IsMenuToken(""))
}
