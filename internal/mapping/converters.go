package mapping

import "crudgate/internal/metadata"

// ComplexConverter handles payload values whose shape the built-in scalar
// coercion does not cover. Converters are consulted in registration order;
// the first one whose Accepts returns true owns the value.
type ComplexConverter interface {
	Accepts(field *metadata.Field, value any) bool
	Convert(field *metadata.Field, value any) (any, error)
}

// ConverterChain is an ordered first-match-wins list of converters.
type ConverterChain []ComplexConverter

// Convert runs the chain. The second return value reports whether any
// converter claimed the value.
func (c ConverterChain) Convert(field *metadata.Field, value any) (any, bool, error) {
	for _, conv := range c {
		if conv.Accepts(field, value) {
			out, err := conv.Convert(field, value)
			return out, true, err
		}
	}
	return nil, false, nil
}
