// Package facts tracks, per lexical region, the bindings in scope and the
// propositions known to hold there.
//
// Regions nest LIFO. Facts recorded inside a region disappear when it exits;
// the caller decides what survives a control-flow merge through Join, which
// keeps only what every non-diverging path agrees on.
package facts

import (
	"cmp"
	"slices"
	"strings"

	"refine/internal/pred"
	"refine/internal/types"
)

// Intro records how a binding was introduced.
type Intro uint8

const (
	IntroParam Intro = iota + 1
	IntroLet
	IntroFor
	IntroMatch
)

func (i Intro) String() string {
	switch i {
	case IntroParam:
		return "parameter"
	case IntroLet:
		return "let"
	case IntroFor:
		return "for"
	case IntroMatch:
		return "match"
	default:
		return "unknown"
	}
}

func (i Intro) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// Binding is one named value. Key is unique per session (the declaring
// node's ID) so shadowed bindings never alias.
type Binding struct {
	Name    string      `json:"name"`
	Key     string      `json:"key"`
	Type    *types.Type `json:"type"`
	Mutable bool        `json:"mutable"`
	Intro   Intro       `json:"intro"`
}

// Term returns the predicate variable denoting b.
func (b *Binding) Term() *pred.Term {
	return pred.Var(b.Name, b.Key, b.Type.Sort())
}

// Provenance says where a fact came from.
type Provenance string

const (
	ProvBranch       Provenance = "branch_condition"
	ProvParamRefine  Provenance = "parameter_refinement"
	ProvPrecondition Provenance = "precondition"
	ProvCalleePost   Provenance = "postcondition_of_callee"
	ProvAssignment   Provenance = "assignment"
	ProvLoopCond     Provenance = "loop_condition"
	ProvLoopRange    Provenance = "loop_range"
	ProvMatchArm     Provenance = "match_arm"
	ProvLetRefine    Provenance = "let_refinement"
	ProvGuard        Provenance = "guard"
	ProvJoin         Provenance = "join"
	ProvAxiom        Provenance = "axiom"
)

// Fact is an immutable proposition plus its provenance.
type Fact struct {
	Prop       *pred.Term `json:"prop"`
	Provenance Provenance `json:"provenance"`
}

type scope struct {
	names  map[string]*Binding
	order  []*Binding
	facts  []Fact
	killed map[string]bool // keys havocked here that enclosing scopes still mention
}

func newScope() *scope {
	return &scope{names: make(map[string]*Binding), killed: make(map[string]bool)}
}

// Context is the scope stack. The zero value is not usable; call New.
type Context struct {
	scopes []*scope
}

// New returns a context holding a single outermost scope.
func New() *Context {
	return &Context{scopes: []*scope{newScope()}}
}

// Depth is the number of open scopes.
func (c *Context) Depth() int { return len(c.scopes) }

func (c *Context) top() *scope { return c.scopes[len(c.scopes)-1] }

// EnterScope opens a nested region.
func (c *Context) EnterScope() {
	c.scopes = append(c.scopes, newScope())
}

// Region is what a closed scope leaves behind for the merge point.
type Region struct {
	// Facts visible at the end of the region that only mention bindings of
	// enclosing scopes.
	Facts []Fact
	// Killed lists binding keys assigned inside the region.
	Killed []string
	// Diverges is set by the caller when the region cannot fall through
	// (it ended in return or fail).
	Diverges bool
}

// ExitScope closes the innermost region. The outermost scope cannot be
// closed; doing so returns an empty region.
func (c *Context) ExitScope() Region {
	if len(c.scopes) == 1 {
		return Region{}
	}
	leaving := c.top()
	visible := c.visibleFacts()
	c.scopes = c.scopes[:len(c.scopes)-1]

	r := Region{}
	for _, f := range visible {
		if c.allBound(f.Prop) {
			r.Facts = append(r.Facts, f)
		}
	}
	for key := range leaving.killed {
		if c.boundKey(key) {
			r.Killed = append(r.Killed, key)
		}
	}
	slices.Sort(r.Killed)
	return r
}

// Bind declares a binding in the innermost scope, shadowing any outer one.
func (c *Context) Bind(b Binding) *Binding {
	nb := b
	s := c.top()
	s.names[b.Name] = &nb
	s.order = append(s.order, &nb)
	return &nb
}

// Lookup resolves a name to its innermost binding.
func (c *Context) Lookup(name string) (*Binding, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if b, ok := c.scopes[i].names[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// Visible lists the bindings reachable by name, innermost first; shadowed
// bindings are left out.
func (c *Context) Visible() []*Binding {
	seen := make(map[string]bool)
	var out []*Binding
	for i := len(c.scopes) - 1; i >= 0; i-- {
		s := c.scopes[i]
		for j := len(s.order) - 1; j >= 0; j-- {
			b := s.order[j]
			if seen[b.Name] || s.names[b.Name] != b {
				continue
			}
			seen[b.Name] = true
			out = append(out, b)
		}
	}
	return out
}

// Assume records prop in the innermost region. Conjunctions are split and
// facts already known are skipped.
func (c *Context) Assume(prop *pred.Term, prov Provenance) {
	if prop == nil {
		return
	}
	known := make(map[string]bool)
	for _, f := range c.visibleFacts() {
		known[f.Prop.Canonical()] = true
	}
	s := c.top()
	for _, conj := range prop.Conjuncts() {
		k := conj.Canonical()
		if known[k] {
			continue
		}
		known[k] = true
		s.facts = append(s.facts, Fact{Prop: conj, Provenance: prov})
	}
}

// Havoc forgets everything known about the binding with the given key. It is
// called on assignment; facts recorded afterwards are unaffected.
func (c *Context) Havoc(key string) {
	s := c.top()
	s.facts = slices.DeleteFunc(s.facts, func(f Fact) bool { return f.Prop.Mentions(key) })
	if len(c.scopes) > 1 {
		s.killed[key] = true
	}
}

// Join merges sibling regions at a control-flow merge: assignments made in
// any region are havocked, and facts present at the end of every
// non-diverging region are assumed. When every region diverges the merge
// point is unreachable.
func (c *Context) Join(regions ...Region) {
	var live []Region
	for _, r := range regions {
		for _, key := range r.Killed {
			c.Havoc(key)
		}
		if !r.Diverges {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		if len(regions) > 0 {
			c.Assume(pred.False, ProvJoin)
		}
		return
	}
	common := make(map[string]int)
	for _, r := range live {
		seen := make(map[string]bool)
		for _, f := range r.Facts {
			k := f.Prop.Canonical()
			if !seen[k] {
				seen[k] = true
				common[k]++
			}
		}
	}
	for _, f := range live[0].Facts {
		k := f.Prop.Canonical()
		if common[k] != len(live) {
			continue
		}
		common[k] = 0
		prov := f.Provenance
		if len(live) > 1 {
			prov = ProvJoin
		}
		c.Assume(f.Prop, prov)
	}
}

// Snapshot is the context an obligation is checked against.
type Snapshot struct {
	Bindings []Binding `json:"bindings"`
	Facts    []Fact    `json:"facts"`
}

// Snapshot captures the visible bindings and facts. Bindings are sorted by
// name so the result is independent of scope layout.
func (c *Context) Snapshot() Snapshot {
	vis := c.Visible()
	snap := Snapshot{
		Bindings: make([]Binding, 0, len(vis)),
		Facts:    c.visibleFacts(),
	}
	for _, b := range vis {
		snap.Bindings = append(snap.Bindings, *b)
	}
	slices.SortFunc(snap.Bindings, func(a, b Binding) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.Key, b.Key))
	})
	return snap
}

// Props returns the propositions of a fact list.
func Props(fs []Fact) []*pred.Term {
	out := make([]*pred.Term, len(fs))
	for i, f := range fs {
		out[i] = f.Prop
	}
	return out
}

// visibleFacts lists facts of every open scope, outermost first, skipping the
// ones a deeper scope havocked.
func (c *Context) visibleFacts() []Fact {
	out := make([]Fact, 0, 8)
	for i, s := range c.scopes {
		for _, f := range s.facts {
			if !c.maskedAbove(i, f.Prop) {
				out = append(out, f)
			}
		}
	}
	return out
}

func (c *Context) maskedAbove(level int, p *pred.Term) bool {
	for j := level + 1; j < len(c.scopes); j++ {
		for key := range c.scopes[j].killed {
			if p.Mentions(key) {
				return true
			}
		}
	}
	return false
}

func (c *Context) boundKey(key string) bool {
	for _, s := range c.scopes {
		for _, b := range s.order {
			if b.Key == key {
				return true
			}
		}
	}
	return false
}

func (c *Context) allBound(p *pred.Term) bool {
	for _, v := range p.FreeVars() {
		if v.Key == types.SelfKey || !c.boundKey(v.Key) {
			return false
		}
	}
	return true
}
