package compiler

import (
	"errors"
	"fmt"
)

var ErrRedefined = errors.New("identifier redefined")

// Scope maps names to the symbols declared in one block.
type Scope map[string]*Symbol

// ScopeStack is the chain of lexical scopes. The bottom scope is the global
// scope and is never popped.
type ScopeStack struct {
	scopes []Scope
}

// NewScopeStack returns a stack holding only the global scope.
func NewScopeStack() *ScopeStack {
	return &ScopeStack{scopes: []Scope{make(Scope)}}
}

// Push opens a nested scope.
func (s *ScopeStack) Push() {
	s.scopes = append(s.scopes, make(Scope))
}

// Pop closes the innermost scope. The global scope stays.
func (s *ScopeStack) Pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// Depth returns the number of open scopes, 1 at global scope.
func (s *ScopeStack) Depth() int {
	return len(s.scopes)
}

// AtGlobal reports whether only the global scope is open.
func (s *ScopeStack) AtGlobal() bool {
	return len(s.scopes) == 1
}

// Declare binds name in the innermost scope. It fails with ErrRedefined if
// the name is already bound there; outer bindings are shadowed.
func (s *ScopeStack) Declare(name string, sym *Symbol) error {
	top := s.scopes[len(s.scopes)-1]
	if _, ok := top[name]; ok {
		return fmt.Errorf("%w: %s", ErrRedefined, name)
	}
	top[name] = sym
	return nil
}

// Lookup resolves name from the innermost scope outward.
func (s *ScopeStack) Lookup(name string) (*Symbol, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if sym, ok := s.scopes[i][name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Global returns the global scope.
func (s *ScopeStack) Global() Scope {
	return s.scopes[0]
}
