// Package token provides the deterministic integer identities used
// throughout the runtime for model names, field names, and method names.
//
// A Token is a polynomial hash of a canonical name. Two processes that
// register the same canonical string always derive the same Token, so
// tokens minted by independently compiled modules compare equal without
// any coordination. Identity is the integer alone; the name attached to a
// token is debug metadata, kept only so error messages stay actionable.
package token

import "fmt"

// Token is the runtime identity of a model, field, or method name.
type Token uint64

// polynomialBase is the multiplier of the "h = h*base + c" string hash
// below (1000003, the multiplier CPython's classic string hash uses),
// chosen for a low collision rate over short identifier-like strings.
const polynomialBase = 1000003

// RecordID is a strongly typed wrapper over a 64-bit record identifier.
// Zero means "empty / not yet persisted"; positive values are valid.
type RecordID uint64

// IsEmpty reports whether the id denotes "not yet persisted".
func (id RecordID) IsEmpty() bool { return id == 0 }

func (id RecordID) String() string { return fmt.Sprintf("#%d", uint64(id)) }

var names = make(map[Token]string)

// For computes the deterministic token for a canonical name and records
// the name for debug purposes. Calling For with the same name at any
// point in the process (or in an independently compiled module) yields
// the same Token.
func For(name string) Token {
	t := hash(name)
	if existing, ok := names[t]; ok && existing != name {
		// Two distinct names colliding on the same 64-bit polynomial hash
		// is astronomically unlikely for the short identifier strings this
		// runtime deals in; if it ever happens, surface it loudly rather
		// than silently merging two different models/fields.
		panic(fmt.Sprintf("token: hash collision between %q and %q", existing, name))
	}
	names[t] = name
	return t
}

// Name returns the debug name registered for t, or "" if none was ever
// minted via For in this process.
func Name(t Token) string { return names[t] }

// String renders the token for error messages and logs: the debug name
// when known, otherwise the raw integer.
func (t Token) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", uint64(t))
}

func hash(s string) Token {
	var h uint64 = 14695981039346656037 // FNV offset basis as a stable seed
	for i := 0; i < len(s); i++ {
		h = h*polynomialBase + uint64(s[i])
	}
	return Token(h)
}
