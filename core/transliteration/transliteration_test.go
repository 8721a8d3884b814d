package transliteration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sectrean/servicekit/core/transliteration"
)

func Test_Transliterate(t *testing.T) {
	tr := transliteration.NewTransliteration()

	tests := []struct {
		name     string
		in       string
		langcode string
		max      int
		want     string
	}{
		{name: "accents", in: "Crème brûlée", langcode: "en", want: "Creme brulee"},
		{name: "german umlauts", in: "Grüße aus Köln", langcode: "de", want: "Gruesse aus Koeln"},
		{name: "umlauts without override", in: "Köln", langcode: "en", want: "Koln"},
		{name: "danish", in: "Århus", langcode: "da", want: "Aarhus"},
		{name: "unknown", in: "日本", langcode: "en", want: "??"},
		{name: "max length", in: "Øresund bridge", langcode: "en", max: 7, want: "Oresund"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Transliterate(tt.in, tt.langcode, transliteration.DefaultUnknown, tt.max)
			assert.Equal(t, tt.want, got)
		})
	}
}
