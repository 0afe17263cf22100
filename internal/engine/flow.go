package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FlowTokenGenerator issues the token of each new flow. Only ingress calls
// start flows; relayed calls carry their caller's token.
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-ordered UUIDv7 tokens. It is the engine
// default and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails if the system random source does.
		panic(fmt.Sprintf("flow token: %v", err))
	}
	return id.String()
}

// TokenList issues a fixed list of tokens in order.
//
//	gen := NewTokenList("flow-1", "flow-2")
//	gen.Generate() // "flow-1"
//	gen.Generate() // "flow-2"
//	gen.Generate() // panics
type TokenList struct {
	mu     sync.Mutex
	tokens []string
}

// NewTokenList returns a generator over tokens.
func NewTokenList(tokens ...string) *TokenList {
	return &TokenList{tokens: tokens}
}

// Generate returns the next token. It panics once the list is used up.
func (l *TokenList) Generate() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tokens) == 0 {
		panic("flow token list exhausted")
	}
	token := l.tokens[0]
	l.tokens = l.tokens[1:]
	return token
}
