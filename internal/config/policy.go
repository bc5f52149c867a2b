package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the commodity rules that change without code changes:
// which products need operator weight confirmation, per-category
// plausibility ceilings, and the tax rates used for total decomposition.
type Policy struct {
	Version string      `yaml:"version"`
	Taxes   TaxPolicy   `yaml:"taxes"`
	Watch   []WatchRule `yaml:"watchlist"`
}

type TaxPolicy struct {
	TaxARate float64 `yaml:"tax_a_rate"`
	TaxBRate float64 `yaml:"tax_b_rate"`
}

// WatchRule marks a commodity category whose packaged weight varies per
// unit. Any product whose name contains one of the fragments must be
// weighed and confirmed by an operator before finalization.
type WatchRule struct {
	Category       string   `yaml:"category"`
	Fragments      []string `yaml:"fragments"`
	MaxPlausibleKg float64  `yaml:"max_plausible_kg"`
}

// LoadPolicy reads the YAML policy file, falling back to the built-in
// defaults when the file does not exist.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return Policy{}, err
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, err
	}
	if p.Taxes.TaxARate == 0 && p.Taxes.TaxBRate == 0 {
		p.Taxes = DefaultPolicy().Taxes
	}
	return p, nil
}

// DefaultPolicy mirrors policy.yaml as shipped.
func DefaultPolicy() Policy {
	return Policy{
		Version: "builtin",
		Taxes:   TaxPolicy{TaxARate: 0.16, TaxBRate: 0.08},
		Watch: []WatchRule{
			{Category: "queso", Fragments: []string{"queso oaxaca", "quesillo", "queso ranchero"}, MaxPlausibleKg: 600},
			{Category: "crema", Fragments: []string{"crema bote", "crema cubeta"}, MaxPlausibleKg: 400},
		},
	}
}

// MatchWatch returns the watch rule whose fragment the product name
// contains, if any. Comparison is case-insensitive substring.
func (p Policy) MatchWatch(productName string) (WatchRule, bool) {
	name := strings.ToLower(productName)
	for _, rule := range p.Watch {
		for _, frag := range rule.Fragments {
			if frag != "" && strings.Contains(name, strings.ToLower(frag)) {
				return rule, true
			}
		}
	}
	return WatchRule{}, false
}

// Implausible reports whether a confirmed weight exceeds the category
// ceiling. A zero ceiling disables the check for that category.
func (r WatchRule) Implausible(quantityKg float64) bool {
	return r.MaxPlausibleKg > 0 && quantityKg > r.MaxPlausibleKg
}
