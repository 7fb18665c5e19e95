package wat

import (
	"github.com/wippyai/syncbridge/wat/internal/encoder"
	"github.com/wippyai/syncbridge/wat/internal/parser"
	"github.com/wippyai/syncbridge/wat/internal/token"
)

// Compile parses a single (module ...) in text format and returns its
// binary encoding.
func Compile(source string) ([]byte, error) {
	tokens := token.Tokenize(source)
	p := parser.New(tokens)
	mod, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return encoder.Encode(mod), nil
}
