package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc-12.3", "ABC123"},
		{" 00123 ", "00123"},
		{"FL/40 x", "FL40X"},
		{"", ""},
		{"---", ""},
		{"ção-1", "O1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCode(tt.in))
		})
	}
}

func TestStripLeadingZeros(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"00123", "123"},
		{"123", "123"},
		{"000", "0"},
		{"0A1", "A1"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripLeadingZeros(tt.in))
		})
	}
}

func TestBasePrefix(t *testing.T) {
	assert.Equal(t, "123", BasePrefix("123-RED"))
	assert.Equal(t, "00123", BasePrefix("00123-A-B"))
	assert.Equal(t, "", BasePrefix("-X"))
	assert.Equal(t, "ABC", BasePrefix("ABC"))
}

func TestNoZerosKey(t *testing.T) {
	assert.Equal(t, "123", NoZerosKey("00-123"))
	assert.Equal(t, "123A", NoZerosKey("00123-a"))
}
