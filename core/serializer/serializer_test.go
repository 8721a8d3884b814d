package serializer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectrean/servicekit/core/serializer"
	"github.com/sectrean/servicekit/internal/testutils"
)

type node struct {
	nid   int
	title string
}

func (n node) Normalize(string) (any, error) {
	return map[string]any{"nid": n.nid, "title": n.title}, nil
}

func Test_Serializer(t *testing.T) {
	s := serializer.NewSerializer(
		[]serializer.Normalizer{serializer.NewDefaultNormalizer()},
		[]serializer.Encoder{serializer.NewJSONEncoder(), serializer.NewYAMLEncoder()},
	)

	t.Run("json", func(t *testing.T) {
		out, err := s.Serialize(node{nid: 1, title: "About"}, "json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"nid":1,"title":"About"}`, string(out))
		assert.Equal(t, "application/json", s.ContentType("json"))
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := s.Serialize(node{nid: 1, title: "About"}, "yaml")
		require.NoError(t, err)
		assert.YAMLEq(t, "nid: 1\ntitle: About\n", string(out))
	})

	t.Run("plain values pass through", func(t *testing.T) {
		out, err := s.Serialize([]string{"a", "b"}, "json")
		require.NoError(t, err)
		assert.Equal(t, `["a","b"]`, string(out))
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := s.Serialize("x", "xml")
		testutils.LogError(t, err)
		assert.ErrorIs(t, err, serializer.ErrUnsupportedFormat)
		assert.False(t, s.SupportsEncoding("xml"))
	})

	t.Run("empty serializer", func(t *testing.T) {
		empty := serializer.NewSerializer(nil, nil)
		_, err := empty.Serialize("x", "json")
		assert.ErrorIs(t, err, serializer.ErrUnsupportedFormat)
	})
}
