package catalog

import "strings"

// Provider ids understood by the rest of the system
const (
	ProviderNetflix = "netflix"
	ProviderHulu    = "hulu"
	ProviderAmazon  = "amazon"
	ProviderHBO     = "hbo"
)

var providerAliases = map[string]string{
	"netflix":            ProviderNetflix,
	"hulu":               ProviderHulu,
	"amazon":             ProviderAmazon,
	"amazon prime video": ProviderAmazon,
	"amazon video":       ProviderAmazon,
	"prime video":        ProviderAmazon,
	"hbo":                ProviderHBO,
	"hbo max":            ProviderHBO,
	"max":                ProviderHBO,
}

// tmdbProviderIDs are TMDb watch-provider ids for discover filtering
var tmdbProviderIDs = map[string]string{
	ProviderNetflix: "8",
	ProviderHulu:    "15",
	ProviderAmazon:  "9",
	ProviderHBO:     "1899",
}

// NormalizeProvider maps a display name to a provider id. Unknown names
// return "" and false.
func NormalizeProvider(name string) (string, bool) {
	id, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// NormalizeProviders maps names to ids, dropping unknown names and
// duplicates while keeping first-seen order.
func NormalizeProviders(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		id, ok := NormalizeProvider(name)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Intersect returns the providers present in both lists, in a's order
func Intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, p := range b {
		in[p] = true
	}
	var out []string
	for _, p := range a {
		if in[p] {
			out = append(out, p)
		}
	}
	return out
}
