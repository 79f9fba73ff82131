package responses

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxAliasTokens is how many content words an alias keeps
const maxAliasTokens = 3

// stopWords are Portuguese function words dropped from question labels
var stopWords = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "a": {}, "o": {}, "as": {}, "os": {},
	"em": {}, "na": {}, "no": {}, "nas": {}, "nos": {}, "para": {}, "por": {}, "com": {},
	"ao": {}, "à": {}, "às": {}, "e": {}, "ou": {}, "que": {}, "se": {}, "é": {}, "uma": {},
	"você": {}, "qual": {}, "sua": {}, "são": {}, "sobre": {}, "tem": {},
}

// IsStopWord reports whether the lower-cased token is dropped from aliases
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Alias derives a short column name from a question label. Characters other
// than letters, digits, underscore and whitespace become spaces; the label is
// split on whitespace, lower-cased, and stop words are removed. Two or more
// remaining tokens give the first three joined by "_", one token gives itself,
// none gives the whole label lower-cased.
func Alias(label string) string {
	lower := cases.Lower(language.Und)

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, label)

	var tokens []string
	for _, field := range strings.Fields(cleaned) {
		token := lower.String(field)
		if IsStopWord(token) {
			continue
		}
		tokens = append(tokens, token)
	}

	switch {
	case len(tokens) >= 2:
		if len(tokens) > maxAliasTokens {
			tokens = tokens[:maxAliasTokens]
		}
		return strings.Join(tokens, "_")
	case len(tokens) == 1:
		return tokens[0]
	default:
		return lower.String(label)
	}
}

// AliasRegistry hands out unique aliases. When two labels map to the same
// alias the later one gets "_2", "_3", ... appended. Reserved names (the
// encoded control columns) are never handed out.
type AliasRegistry struct {
	mu       sync.Mutex
	used     map[string]struct{}
	byLabel  map[string]string
	assigned []string
}

// NewAliasRegistry creates a registry with the given names already taken
func NewAliasRegistry(reserved ...string) *AliasRegistry {
	r := &AliasRegistry{
		used:    make(map[string]struct{}, len(reserved)),
		byLabel: make(map[string]string),
	}
	for _, name := range reserved {
		r.used[name] = struct{}{}
	}
	return r
}

// Reserve marks names as taken
func (r *AliasRegistry) Reserve(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.used[name] = struct{}{}
	}
}

// Assign returns the alias for label, registering it on first use. The same
// label always gets the same alias from one registry.
func (r *AliasRegistry) Assign(label string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if alias, ok := r.byLabel[label]; ok {
		return alias
	}

	base := Alias(label)
	alias := base
	for n := 2; r.taken(alias); n++ {
		alias = fmt.Sprintf("%s_%d", base, n)
	}

	r.used[alias] = struct{}{}
	r.byLabel[label] = alias
	r.assigned = append(r.assigned, alias)
	return alias
}

// Assigned returns aliases in assignment order
func (r *AliasRegistry) Assigned() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.assigned...)
}

func (r *AliasRegistry) taken(name string) bool {
	_, ok := r.used[name]
	return ok
}
