package domain

import "sync/atomic"

// Token identifies one fetch attempt. Later tokens compare greater.
type Token uint64

// TokenIssuer mints fetch tokens. Only the most recently issued token is
// current; every earlier one is stale.
type TokenIssuer struct {
	last atomic.Uint64
}

// Issue returns a token greater than every token issued before it.
func (i *TokenIssuer) Issue() Token {
	return Token(i.last.Add(1))
}

// IsCurrent reports whether t is the latest issued token.
func (i *TokenIssuer) IsCurrent(t Token) bool {
	return t != 0 && uint64(t) == i.last.Load()
}

// Current returns the latest issued token, or zero before the first Issue.
func (i *TokenIssuer) Current() Token {
	return Token(i.last.Load())
}
