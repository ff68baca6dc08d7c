package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Sigmoid is the logistic function, stable for large |x|
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logit is the inverse of Sigmoid
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// SoftmaxGroups applies a max-subtracted softmax to each consecutive group of width entries.
// It is the value-only form used for sampling; networks normalize inside their graph.
func SoftmaxGroups(logits []float64, width int) []float64 {
	out := make([]float64, len(logits))
	for start := 0; start+width <= len(logits); start += width {
		in := logits[start : start+width]
		dst := out[start : start+width]
		maxv := floats.Max(in)
		for i, v := range in {
			dst[i] = math.Exp(v - maxv)
		}
		floats.Scale(1/floats.Sum(dst), dst)
	}
	return out
}

// lossGraph evaluates a scalar loss of one input vector and its gradient
func lossGraph(name string, input []float64, loss func(g *gorgonia.ExprGraph, x *gorgonia.Node) (*gorgonia.Node, error)) (float64, []float64, error) {
	if len(input) == 0 {
		return 0, nil, nil
	}
	g := gorgonia.NewGraph()
	x := gorgonia.NewVector(g, tensor.Float64,
		gorgonia.WithShape(len(input)),
		gorgonia.WithName(name),
		gorgonia.WithValue(vectorTensor(input)))
	cost, err := loss(g, x)
	if err != nil {
		return 0, nil, fmt.Errorf("%s loss: %w", name, err)
	}
	grads, err := gorgonia.Grad(cost, x)
	if err != nil {
		return 0, nil, fmt.Errorf("%s gradient: %w", name, err)
	}
	if err := run(g); err != nil {
		return 0, nil, fmt.Errorf("%s loss: %w", name, err)
	}
	lv, err := values(cost.Value())
	if err != nil {
		return 0, nil, err
	}
	gv, err := values(grads[0].Value())
	if err != nil {
		return 0, nil, err
	}
	return lv[0], append([]float64(nil), gv...), nil
}

// BCEWithLogits is the mean binary cross-entropy of Sigmoid(logits) against a constant label,
// computed as softplus(z) - y·z, together with its gradient with respect to the logits
func BCEWithLogits(logits []float64, label float64) (float64, []float64, error) {
	return lossGraph("logits", logits, func(g *gorgonia.ExprGraph, z *gorgonia.Node) (*gorgonia.Node, error) {
		sp, err := gorgonia.Softplus(z)
		if err != nil {
			return nil, err
		}
		yz, err := gorgonia.Mul(z, gorgonia.NewConstant(label))
		if err != nil {
			return nil, err
		}
		terms, err := gorgonia.Sub(sp, yz)
		if err != nil {
			return nil, err
		}
		return gorgonia.Mean(terms)
	})
}

// MSE returns the mean squared error and its gradient with respect to pred
func MSE(pred, target []float64) (float64, []float64, error) {
	if len(pred) != len(target) {
		return 0, nil, fmt.Errorf("mse: %d predictions for %d targets", len(pred), len(target))
	}
	return lossGraph("pred", pred, func(g *gorgonia.ExprGraph, p *gorgonia.Node) (*gorgonia.Node, error) {
		t := gorgonia.NewVector(g, tensor.Float64,
			gorgonia.WithShape(len(target)),
			gorgonia.WithName("target"),
			gorgonia.WithValue(vectorTensor(target)))
		diff, err := gorgonia.Sub(p, t)
		if err != nil {
			return nil, err
		}
		sq, err := gorgonia.Square(diff)
		if err != nil {
			return nil, err
		}
		return gorgonia.Mean(sq)
	})
}
