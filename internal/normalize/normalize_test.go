package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Drill", "Drill"},
		{"  Amager   Strand ", "Amager Strand"},
		{"Øster  Fælled", "Øster Fælled"},
		{"A\x00B", "AB"},
		{"é", "é"},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Name(tt.input))
		})
	}
}

func TestAssociationKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Amager Strand", "amager strand"},
		{"  AMAGER   strand", "amager strand"},
		{"Ørestad", "ørestad"},
		{"Ｎørrebro", "nørrebro"}, // fullwidth N
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, AssociationKey(tt.input))
		})
	}

	assert.NotEqual(t, AssociationKey("Ørestad"), AssociationKey("Orestad"))
}

func TestDescription(t *testing.T) {
	t.Run("plain text is trimmed", func(t *testing.T) {
		assert.Equal(t, "Good drill, 18V", Description("  Good drill, 18V \n"))
	})

	t.Run("text with angle brackets is not html", func(t *testing.T) {
		assert.Equal(t, "length < 2m > 1m", Description("length < 2m > 1m"))
	})

	t.Run("html becomes markdown", func(t *testing.T) {
		assert.Equal(t, "**Sharp** saw", Description("<p><strong>Sharp</strong> saw</p>"))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Description(""))
	})
}
