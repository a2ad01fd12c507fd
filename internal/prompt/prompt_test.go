package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pintatina/internal/domain"
)

func TestModifiers_AreDistinctAndFixed(t *testing.T) {
	mods := Modifiers()
	require.Len(t, mods, Count)

	seen := make(map[string]bool)
	for i, m := range mods {
		assert.NotEmpty(t, m)
		assert.False(t, seen[m], "modifier %d is duplicated", i)
		seen[m] = true

		got, err := Modifier(i)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	mods[0] = "tampered"
	first, _ := Modifier(0)
	assert.NotEqual(t, "tampered", first, "Modifiers must return a copy")
}

func TestModifier_OutOfRange(t *testing.T) {
	_, err := Modifier(-1)
	assert.Error(t, err)
	_, err = Modifier(Count)
	assert.Error(t, err)
}

func TestBuildRequest(t *testing.T) {
	images := []domain.ReferenceImage{
		{Ordinal: 1, Image: domain.Image{Data: []byte("a"), MimeType: "image/png"}},
		{Ordinal: 2, Image: domain.Image{Data: []byte("b"), MimeType: "image/jpeg"}},
	}
	desc := "  @img1 y @img2 en un picnic  "

	t.Run("same inputs give identical text", func(t *testing.T) {
		a, err := BuildRequest(desc, 4, images)
		require.NoError(t, err)
		b, err := BuildRequest(desc, 4, images)
		require.NoError(t, err)
		assert.Equal(t, a.Text, b.Text)
		assert.Equal(t, AspectRatio, a.AspectRatio)
		assert.Equal(t, images, a.Images)
	})

	t.Run("only the variation differs between pages", func(t *testing.T) {
		var texts []string
		for i := 0; i < Count; i++ {
			req, err := BuildRequest(desc, i, images)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(req.Text, styleConstraints))
			assert.Contains(t, req.Text, "@img1 y @img2 en un picnic")
			assert.Contains(t, req.Text, "Variation: "+modifiers[i])
			texts = append(texts, req.Text)
		}
		for i := 1; i < len(texts); i++ {
			assert.NotEqual(t, texts[0], texts[i])
		}
	})

	t.Run("attached images are copied", func(t *testing.T) {
		req, err := BuildRequest(desc, 0, images)
		require.NoError(t, err)
		req.Images[0].Ordinal = 99
		assert.Equal(t, 1, images[0].Ordinal)
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := BuildRequest(desc, Count, images)
		assert.Error(t, err)
	})
}

func TestReferenceLabel(t *testing.T) {
	assert.Equal(t, "Reference image for subject @img3:", ReferenceLabel(3))
}
