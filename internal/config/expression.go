package config

import (
	"context"

	"github.com/specialistvlad/esxigrid/internal/property"
)

// Expression is an input value that may depend on other resources' outputs.
type Expression interface {
	// References lists the outputs the expression reads.
	References() []property.Reference
	// Evaluate computes the value, reading referenced outputs from scope.
	// It is only called once every referenced resource is realized.
	Evaluate(ctx context.Context, scope Scope) (property.Value, error)
}

// Scope resolves references to realized outputs.
type Scope interface {
	Output(ctx context.Context, ref property.Reference) (property.Value, error)
}

// ScopeFunc adapts a function to the Scope interface.
type ScopeFunc func(ctx context.Context, ref property.Reference) (property.Value, error)

// Output implements Scope.
func (f ScopeFunc) Output(ctx context.Context, ref property.Reference) (property.Value, error) {
	return f(ctx, ref)
}

// Literal wraps a property value as an expression. References nested in
// the value are substituted on evaluation.
func Literal(v property.Value) Expression {
	return literal{v: v}
}

type literal struct {
	v property.Value
}

func (l literal) References() []property.Reference {
	return l.v.References()
}

func (l literal) Evaluate(ctx context.Context, scope Scope) (property.Value, error) {
	return l.v.Resolve(func(ref property.Reference) (property.Value, error) {
		return scope.Output(ctx, ref)
	})
}

// Inputs wraps every value of bag as a literal expression.
func Inputs(bag property.Bag) map[string]Expression {
	exprs := make(map[string]Expression, len(bag))
	for k, v := range bag {
		exprs[k] = Literal(v)
	}
	return exprs
}

// EvaluateInputs evaluates every expression into a bag. Keys evaluating to
// null are kept so explicit nulls stay distinguishable from omissions.
func EvaluateInputs(ctx context.Context, inputs map[string]Expression, scope Scope) (property.Bag, error) {
	bag := make(property.Bag, len(inputs))
	for name, expr := range inputs {
		v, err := expr.Evaluate(ctx, scope)
		if err != nil {
			return nil, &EvalError{Input: name, Err: err}
		}
		bag[name] = v
	}
	return bag, nil
}

// EvalError wraps a failure evaluating one input.
type EvalError struct {
	Input string
	Err   error
}

func (e *EvalError) Error() string {
	return "evaluating input " + e.Input + ": " + e.Err.Error()
}

func (e *EvalError) Unwrap() error { return e.Err }
