package capability

import "strings"

// Key identifies a (provider, submodel) pair.
type Key struct {
	Provider string
	Submodel string
}

// NewKey builds a normalized key.
func NewKey(provider, submodel string) Key {
	return Key{
		Provider: strings.ToLower(strings.TrimSpace(provider)),
		Submodel: NormalizeSubmodel(submodel),
	}
}

func (k Key) String() string {
	return k.Provider + "|" + k.Submodel
}

// NormalizeSubmodel canonicalizes a model name so that cosmetic variants
// ("models/gemini-pro", " GPT-4o ", "llama3:latest") share one entry.
func NormalizeSubmodel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	m = strings.TrimPrefix(m, "models/")
	m = strings.TrimSuffix(m, ":latest")
	return strings.Join(strings.Fields(m), "-")
}
