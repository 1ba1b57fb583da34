package matching

import (
	"strings"
	"unicode"
)

// AliasTable maps normalized alternate spellings to a canonical participant
// name for one sport. Rebuilt each cycle and treated as immutable.
type AliasTable map[string]string

// Overrides are operator-supplied corrections. They take priority over the
// alias table so bad automated matches can be self-healed without a deploy.
type Overrides map[string]string

// Resolve maps a free-text participant name to its canonical name.
//
// Resolution order:
// 1. Exact normalized match against the canonical set
// 2. Operator override (highest priority among fallbacks)
// 3. Alias table lookup
// 4. Last-token "nickname" match (e.g. "Lakers" for "Los Angeles Lakers")
//
// Returns ok=false when nothing matches; the caller drops the quote and
// moves on, never blocking other events.
func Resolve(name string, canonical []string, aliases AliasTable, overrides Overrides) (string, bool) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", false
	}

	for _, c := range canonical {
		if NormalizeName(c) == normalized {
			return c, true
		}
	}

	if overrides != nil {
		if c, ok := overrides[normalized]; ok {
			return c, true
		}
	}

	if aliases != nil {
		if c, ok := aliases[normalized]; ok {
			return c, true
		}
	}

	// Nickname match: compare the last token of the input against the last
	// token of each canonical name
	tokens := strings.Fields(normalized)
	if len(tokens) > 0 {
		nickname := tokens[len(tokens)-1]
		for _, c := range canonical {
			cTokens := strings.Fields(NormalizeName(c))
			if len(cTokens) > 0 && cTokens[len(cTokens)-1] == nickname {
				return c, true
			}
		}
	}

	return "", false
}

// NormalizeName lowercases, strips punctuation and collapses whitespace so
// "St. Louis  Blues" and "st louis blues" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// TeamID produces a stable slug for a canonical name
// "Los Angeles Lakers" → "los-angeles-lakers"
func TeamID(canonical string) string {
	return strings.ReplaceAll(NormalizeName(canonical), " ", "-")
}

// TeamSetKey produces an order-independent pair key for two team IDs.
// It is the join key between bookmaker data and candidate markets, so
// TeamSetKey(a, b) == TeamSetKey(b, a) must always hold.
func TeamSetKey(idA, idB string) string {
	if idA > idB {
		idA, idB = idB, idA
	}
	return idA + "__" + idB
}

// EventKey builds the scanner-wide event identifier from sport and pair key.
func EventKey(sportKey, teamSetKey string) string {
	return sportKey + "|" + teamSetKey
}
