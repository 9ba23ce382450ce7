package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var encodings sync.Map // model -> *tiktoken.Tiktoken

// EstimateTokens counts tokens with the model's BPE encoding, falling back to
// cl100k_base for unknown models and to ApproxTokens when no encoding loads.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return ApproxTokens(text)
}

func encodingFor(model string) *tiktoken.Tiktoken {
	if v, ok := encodings.Load(model); ok {
		return v.(*tiktoken.Tiktoken)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	encodings.Store(model, enc)
	return enc
}

// ApproxTokens is the four-characters-per-token rule of thumb.
func ApproxTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
