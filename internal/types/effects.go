package types

import (
	"fmt"
	"slices"
	"strings"
)

// Effect is `Name` or `Name[Payload]`.
type Effect struct {
	Name    string
	Payload string
}

// ParseEffect reads the textual form stored on fn nodes.
func ParseEffect(s string) (Effect, error) {
	s = strings.TrimSpace(s)
	name, rest, ok := strings.Cut(s, "[")
	if !ok {
		if s == "" {
			return Effect{}, fmt.Errorf("empty effect")
		}
		return Effect{Name: s}, nil
	}
	payload, ok := strings.CutSuffix(rest, "]")
	if !ok || name == "" || payload == "" {
		return Effect{}, fmt.Errorf("malformed effect %q", s)
	}
	return Effect{Name: strings.TrimSpace(name), Payload: strings.TrimSpace(payload)}, nil
}

func (e Effect) String() string {
	if e.Payload == "" {
		return e.Name
	}
	return e.Name + "[" + e.Payload + "]"
}

// SubEffect reports e <= of. Payloads are covariant: Never is below every
// payload and an unparameterized effect covers every payload of its name.
func (e Effect) SubEffect(of Effect) bool {
	if e.Name != of.Name {
		return false
	}
	return of.Payload == "" || e.Payload == of.Payload || e.Payload == "Never"
}

// EffectSet is a sorted, duplicate-free set. The empty set is pure.
type EffectSet []Effect

// ParseEffects builds a set from the textual list on a fn node.
func ParseEffects(raw []string) (EffectSet, error) {
	out := make(EffectSet, 0, len(raw))
	for _, r := range raw {
		e, err := ParseEffect(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out.normalize(), nil
}

func (s EffectSet) normalize() EffectSet {
	slices.SortFunc(s, func(a, b Effect) int { return strings.Compare(a.String(), b.String()) })
	return slices.CompactFunc(s, func(a, b Effect) bool { return a == b })
}

// Union merges two sets.
func (s EffectSet) Union(o EffectSet) EffectSet {
	out := make(EffectSet, 0, len(s)+len(o))
	out = append(out, s...)
	out = append(out, o...)
	return out.normalize()
}

// Covers reports whether e is below some member of s.
func (s EffectSet) Covers(e Effect) bool {
	for _, have := range s {
		if e.SubEffect(have) {
			return true
		}
	}
	return false
}

// Missing returns the members of need that s does not cover. A nil result
// means need <= s.
func (s EffectSet) Missing(need EffectSet) EffectSet {
	var out EffectSet
	for _, e := range need {
		if !s.Covers(e) {
			out = append(out, e)
		}
	}
	return out
}

// Strings renders the set in order.
func (s EffectSet) Strings() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.String()
	}
	return out
}
