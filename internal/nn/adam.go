package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
)

// ParamGroup is a set of parameters sharing one learning rate
type ParamGroup struct {
	Name   string
	LR     float64
	Params []*Param
}

// Adam runs one gorgonia Adam solver per parameter group
type Adam struct {
	Beta1 float64
	Beta2 float64
	Eps   float64

	step    int
	groups  []ParamGroup
	solvers []*gorgonia.AdamSolver
	models  [][]gorgonia.ValueGrad
}

// NewAdam creates an optimizer with betas (0.9, 0.999) and eps 1e-8
func NewAdam(groups ...ParamGroup) *Adam {
	a := &Adam{Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, groups: groups}
	a.models = make([][]gorgonia.ValueGrad, len(groups))
	for gi, g := range groups {
		for _, p := range g.Params {
			a.models[gi] = append(a.models[gi], &solverParam{p: p})
		}
	}
	a.reset()
	return a
}

// reset builds fresh solvers, which also clears their moment estimates
func (a *Adam) reset() {
	a.solvers = make([]*gorgonia.AdamSolver, len(a.groups))
	for gi, g := range a.groups {
		a.solvers[gi] = gorgonia.NewAdamSolver(
			gorgonia.WithLearnRate(g.LR),
			gorgonia.WithBeta1(a.Beta1),
			gorgonia.WithBeta2(a.Beta2),
			gorgonia.WithEps(a.Eps),
		)
	}
}

// Steps returns the number of updates applied
func (a *Adam) Steps() int { return a.step }

// Groups returns the parameter groups
func (a *Adam) Groups() []ParamGroup { return a.groups }

// ZeroGrad clears the gradients of every managed parameter
func (a *Adam) ZeroGrad() {
	for _, g := range a.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// Step applies one update from the accumulated gradients
func (a *Adam) Step() error {
	for gi, s := range a.solvers {
		if err := s.Step(a.models[gi]); err != nil {
			return fmt.Errorf("adam group %s: %w", a.groups[gi].Name, err)
		}
	}
	a.step++
	return nil
}

// State exports the optimizer settings for a checkpoint
func (a *Adam) State() checkpoint.OptimizerState {
	out := checkpoint.OptimizerState{Step: a.step, Beta1: a.Beta1, Beta2: a.Beta2, Eps: a.Eps}
	for _, g := range a.groups {
		gs := checkpoint.ParamGroupState{Name: g.Name, LearningRate: g.LR}
		for _, p := range g.Params {
			gs.Params = append(gs.Params, p.Name)
		}
		out.Groups = append(out.Groups, gs)
	}
	return out
}

// LoadState restores settings exported by State for the same parameter layout
func (a *Adam) LoadState(s checkpoint.OptimizerState) error {
	if len(s.Groups) != len(a.groups) {
		return core.NewShapeError("optimizer groups", len(a.groups), len(s.Groups))
	}
	for gi, g := range a.groups {
		gs := s.Groups[gi]
		if gs.Name != g.Name {
			return fmt.Errorf("%w: optimizer group %d is %q, want %q", core.ErrShapeMismatch, gi, gs.Name, g.Name)
		}
		if len(gs.Params) != len(g.Params) {
			return core.NewShapeError("optimizer group "+g.Name, len(g.Params), len(gs.Params))
		}
		for pi, p := range g.Params {
			if gs.Params[pi] != p.Name {
				return fmt.Errorf("%w: optimizer parameter %q does not match %q", core.ErrShapeMismatch, gs.Params[pi], p.Name)
			}
		}
	}
	a.step = s.Step
	a.Beta1, a.Beta2, a.Eps = s.Beta1, s.Beta2, s.Eps
	for gi := range a.groups {
		a.groups[gi].LR = s.Groups[gi].LearningRate
	}
	a.reset()
	return nil
}
