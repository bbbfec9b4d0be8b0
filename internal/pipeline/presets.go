package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Preset defines a named scan profile with pre-configured settings.
type Preset struct {
	Name        string
	Description string
	VerifyHTTP  bool
	UseCT       bool
	Concurrency int
	DNSRetries  int
}

// Apply overwrites the tunable fields of req with the preset's values.
func (p Preset) Apply(req *Request) {
	req.VerifyHTTP = p.VerifyHTTP
	req.UseCT = p.UseCT
	req.Concurrency = p.Concurrency
	req.DNSRetries = p.DNSRetries
}

// builtinPresets is the registry of all known presets.
var builtinPresets = map[string]Preset{
	"quick": {
		Name:        "quick",
		Description: "DNS-only sweep of the wordlist at maximum concurrency, no CT lookup",
		VerifyHTTP:  false,
		UseCT:       false,
		Concurrency: 50,
		DNSRetries:  0,
	},
	"standard": {
		Name:        "standard",
		Description: "Wordlist plus certificate transparency, DNS and HTTP verification",
		VerifyHTTP:  true,
		UseCT:       true,
		Concurrency: 20,
		DNSRetries:  1,
	},
	"thorough": {
		Name:        "thorough",
		Description: "Like standard, with gentler concurrency and extra DNS retries for flaky resolvers",
		VerifyHTTP:  true,
		UseCT:       true,
		Concurrency: 10,
		DNSRetries:  2,
	},
}

// BuiltinPresets returns the available preset templates.
func BuiltinPresets() map[string]Preset {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Preset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or an error if not found.
func GetPreset(name string) (*Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q, available: %s", name, strings.Join(PresetNames(), ", "))
	}
	cp := p
	return &cp, nil
}
