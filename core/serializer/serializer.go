// Package serializer turns values into encoded payloads through
// normalizers and format encoders.
package serializer

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/sectrean/servicekit/internal/errors"
)

// ErrUnsupportedFormat is returned when no encoder supports a format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Normalizer converts a value into plain maps, slices and scalars.
type Normalizer interface {
	SupportsNormalization(v any, format string) bool
	Normalize(v any, format string) (any, error)
}

// Encoder encodes normalized data in one or more formats.
type Encoder interface {
	SupportsEncoding(format string) bool
	Encode(data any, format string) ([]byte, error)
	ContentType(format string) string
}

// Normalizable is implemented by values that normalize themselves.
type Normalizable interface {
	Normalize(format string) (any, error)
}

// Serializer uses the first normalizer and encoder that support a value and format.
type Serializer struct {
	normalizers []Normalizer
	encoders    []Encoder
}

// NewSerializer creates a [Serializer]. Earlier entries take precedence.
func NewSerializer(normalizers []Normalizer, encoders []Encoder) *Serializer {
	return &Serializer{normalizers: normalizers, encoders: encoders}
}

// Serialize normalizes v and encodes it in format.
func (s *Serializer) Serialize(v any, format string) ([]byte, error) {
	data, err := s.Normalize(v, format)
	if err != nil {
		return nil, err
	}
	return s.Encode(data, format)
}

// Normalize uses the first supporting normalizer, or returns v unchanged.
func (s *Serializer) Normalize(v any, format string) (any, error) {
	for _, n := range s.normalizers {
		if n.SupportsNormalization(v, format) {
			data, err := n.Normalize(v, format)
			return data, errors.Wrapf(err, "normalize %T", v)
		}
	}
	return v, nil
}

// Encode uses the first encoder supporting format.
func (s *Serializer) Encode(data any, format string) ([]byte, error) {
	e, err := s.encoder(format)
	if err != nil {
		return nil, err
	}
	raw, err := e.Encode(data, format)
	return raw, errors.Wrapf(err, "encode %s", format)
}

// SupportsEncoding returns true if an encoder supports format.
func (s *Serializer) SupportsEncoding(format string) bool {
	_, err := s.encoder(format)
	return err == nil
}

// ContentType returns the media type for format.
func (s *Serializer) ContentType(format string) string {
	e, err := s.encoder(format)
	if err != nil {
		return "application/octet-stream"
	}
	return e.ContentType(format)
}

func (s *Serializer) encoder(format string) (Encoder, error) {
	for _, e := range s.encoders {
		if e.SupportsEncoding(format) {
			return e, nil
		}
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "format %q", format)
}

// DefaultNormalizer normalizes values that implement [Normalizable].
type DefaultNormalizer struct{}

// NewDefaultNormalizer creates a [DefaultNormalizer].
func NewDefaultNormalizer() *DefaultNormalizer {
	return &DefaultNormalizer{}
}

func (*DefaultNormalizer) SupportsNormalization(v any, _ string) bool {
	_, ok := v.(Normalizable)
	return ok
}

func (*DefaultNormalizer) Normalize(v any, format string) (any, error) {
	return v.(Normalizable).Normalize(format)
}

// JSONEncoder encodes the "json" format.
type JSONEncoder struct{}

// NewJSONEncoder creates a [JSONEncoder].
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (*JSONEncoder) SupportsEncoding(format string) bool {
	return format == "json"
}

func (*JSONEncoder) Encode(data any, _ string) ([]byte, error) {
	return json.Marshal(data)
}

func (*JSONEncoder) ContentType(string) string {
	return "application/json"
}

// YAMLEncoder encodes the "yaml" format.
type YAMLEncoder struct{}

// NewYAMLEncoder creates a [YAMLEncoder].
func NewYAMLEncoder() *YAMLEncoder {
	return &YAMLEncoder{}
}

func (*YAMLEncoder) SupportsEncoding(format string) bool {
	return format == "yaml"
}

func (*YAMLEncoder) Encode(data any, _ string) ([]byte, error) {
	return yaml.Marshal(data)
}

func (*YAMLEncoder) ContentType(string) string {
	return "application/yaml"
}
