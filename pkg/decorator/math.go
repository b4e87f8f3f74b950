package decorator

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Parameter names a formula parameter: Name is the identifier the formula
// references, Accessor its live value source, re-read (ReadLatest) before
// every evaluation (spec §4.9 "Math ... updates parameter accessors
// (read-latest)").
type Parameter struct {
	Name     string
	Accessor accessor.Accessor[float64]
}

type mathEnv struct {
	X      float64
	Params map[string]float64
}

// Math evaluates a compiled formula against the target register's value
// (bound to "X") and a set of named Parameters on every read, and runs an
// explicit inverse formula on write — arbitrary formulas aren't
// invertible, so the original requires the map author to supply one
// (spec §4.9 "Math"). Grounded on LNMMathPlugin.cc; formula compilation
// uses github.com/expr-lang/expr (sourced from the retrieval pack, see
// DESIGN.md) rather than a hand-written evaluator.
type Math struct {
	*Base[float64, float64]

	program    *vm.Program
	invProgram *vm.Program
	params     []Parameter
}

// NewMath compiles formula (and, if non-empty, invFormula) and returns a
// Math decorator over target.
func NewMath(target accessor.Accessor[float64], formula, invFormula string, params []Parameter) (*Math, error) {
	program, err := expr.Compile(formula, expr.Env(mathEnv{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("math: compiling formula: %w", err)
	}
	m := &Math{
		Base:    NewBase[float64, float64](target, nil, nil),
		program: program,
		params:  params,
	}
	if invFormula != "" {
		invProgram, err := expr.Compile(invFormula, expr.Env(mathEnv{}), expr.AsFloat64())
		if err != nil {
			return nil, fmt.Errorf("math: compiling inverse formula: %w", err)
		}
		m.invProgram = invProgram
	}
	return m, nil
}

func (m *Math) environment(ctx context.Context, x float64) (mathEnv, error) {
	params := make(map[string]float64, len(m.params))
	for _, p := range m.params {
		if _, err := p.Accessor.ReadLatest(ctx); err != nil {
			return mathEnv{}, deverrs.WrapRuntime("Math.readParameters", err)
		}
		params[p.Name] = p.Accessor.Buffer().Channel(0)[0]
	}
	return mathEnv{X: x, Params: params}, nil
}

// PostRead runs the target's PostRead, then re-evaluates the formula with
// freshly read parameters, publishing the result into this decorator's
// own buffer.
func (m *Math) PostRead(ctx context.Context, hasNewData bool) error {
	if err := m.Target.PostRead(ctx, hasNewData); err != nil {
		return err
	}
	if !hasNewData {
		return nil
	}

	env, err := m.environment(ctx, m.Target.Buffer().Channel(0)[0])
	if err != nil {
		return err
	}
	result, err := expr.Run(m.program, env)
	if err != nil {
		return deverrs.NewLogicError("Math.PostRead", "formula evaluation failed: %v", err)
	}
	value, ok := result.(float64)
	if !ok {
		return deverrs.NewLogicError("Math.PostRead", "formula must evaluate to a number")
	}
	m.Buffer().Channel(0)[0] = value
	return nil
}

// PreWrite requires an inverse formula; writing without one is a
// LogicError rather than a silent no-op.
func (m *Math) PreWrite(ctx context.Context, mode accessor.AccessMode, v version.Number) error {
	if m.invProgram == nil {
		return deverrs.NewLogicError("Math.PreWrite", "register %q has no inverse formula and is read-only", m.Name())
	}
	env, err := m.environment(ctx, m.Buffer().Channel(0)[0])
	if err != nil {
		return err
	}
	result, err := expr.Run(m.invProgram, env)
	if err != nil {
		return deverrs.NewLogicError("Math.PreWrite", "inverse formula evaluation failed: %v", err)
	}
	value, ok := result.(float64)
	if !ok {
		return deverrs.NewLogicError("Math.PreWrite", "inverse formula must evaluate to a number")
	}
	m.Target.Buffer().Channel(0)[0] = value
	return m.Target.PreWrite(ctx, mode, v)
}

// IsWriteable is false unless both the target accepts writes and an
// inverse formula was supplied.
func (m *Math) IsWriteable() bool {
	return m.invProgram != nil && m.Target.IsWriteable()
}

// Read, ReadNonBlocking, ReadLatest and Write are redeclared here rather
// than left to promotion from Base: Base's own versions run the transfer
// protocol against its own embedded receiver, which would bypass this
// type's PostRead/PreWrite overrides entirely.
func (m *Math) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, m, accessor.AccessMode{})
}

func (m *Math) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := m.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := m.DoReadTransfer(ctx)
	if err := m.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (m *Math) ReadLatest(ctx context.Context) (bool, error) {
	return m.ReadNonBlocking(ctx)
}

func (m *Math) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, m, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[float64] = (*Math)(nil)
