package check

import "github.com/riverdb/riverdb/scope"

// Env is the typechecking environment: the variable scope maps names to term
// types and the implicit stack tracks whether the current row is bindable.
type Env struct {
	Scope    scope.Scope[TermType]
	Implicit scope.Implicit[TermType]
}

// NewEnv returns an environment with one open frame on each stack.
func NewEnv() *Env {
	var env Env
	env.Scope.Push()
	env.Implicit.Push()
	return &env
}
