// # internal/scope/scope.go
package scope

import (
	"regexp"
	"sort"
)

// Names both prefixed and suffixed by double underscores (__name__, __file__)
// are supplied by the interpreter environment, never declared by the user.
var environmentName = regexp.MustCompile(`^__.+__$`)

// Scope is a set of names bound at one nesting level. Membership is the only
// operation that matters.
type Scope map[string]struct{}

func NewScope(names ...string) Scope {
	s := make(Scope, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Scope) Add(name string) {
	s[name] = struct{}{}
}

func (s Scope) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s Scope) Clone() Scope {
	out := make(Scope, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Names returns the members in sorted order.
func (s Scope) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the names present in every given scope.
func Intersect(scopes []Scope) Scope {
	if len(scopes) == 0 {
		return NewScope()
	}
	out := scopes[0].Clone()
	for _, s := range scopes[1:] {
		for n := range out {
			if !s.Has(n) {
				delete(out, n)
			}
		}
	}
	return out
}

// Stack is the nested-scope structure for one function or method check.
// The bottom scope holds the global symbol set, builtins and any known
// instance attributes; it is never popped.
type Stack struct {
	scopes []Scope
}

func NewStack(bottom Scope) *Stack {
	return &Stack{scopes: []Scope{bottom}}
}

func (st *Stack) Push(names ...string) {
	st.scopes = append(st.scopes, NewScope(names...))
}

// Pop removes and returns the top scope. The bottom scope stays in place.
func (st *Stack) Pop() Scope {
	if len(st.scopes) == 1 {
		return st.scopes[0]
	}
	top := st.scopes[len(st.scopes)-1]
	st.scopes = st.scopes[:len(st.scopes)-1]
	return top
}

func (st *Stack) Top() Scope {
	return st.scopes[len(st.scopes)-1]
}

func (st *Stack) Bind(name string) {
	st.Top().Add(name)
}

func (st *Stack) BindAll(names []string) {
	for _, n := range names {
		st.Top().Add(n)
	}
}

// Promote merges names directly into the current top scope without a
// push/pop, used for try/else/finally bodies and plain with blocks.
func (st *Stack) Promote(names Scope) {
	top := st.Top()
	for n := range names {
		top.Add(n)
	}
}

// Visible reports whether a name is bound in any active scope, or matches
// the environment-supplied dunder pattern.
func (st *Stack) Visible(name string) bool {
	if environmentName.MatchString(name) {
		return true
	}
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if st.scopes[i].Has(name) {
			return true
		}
	}
	return false
}

// NonGlobal returns every name visible above the bottom scope, sorted. Used
// only for diagnostic context.
func (st *Stack) NonGlobal() []string {
	merged := NewScope()
	for _, s := range st.scopes[1:] {
		for n := range s {
			merged.Add(n)
		}
	}
	return merged.Names()
}
