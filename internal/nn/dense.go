// Package nn builds small dense networks as gorgonia expression graphs. Parameters live in gonum
// matrices shared with gorgonia tensors, gradients come from gorgonia's symbolic differentiation
// and Adam is gorgonia's solver. Batches are row-major, one sample per row.
package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is a trainable tensor with its accumulated gradient. value and grad are gorgonia views
// over the same backing arrays as Value and Grad.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense

	value *tensor.Dense
	grad  *tensor.Dense
}

func newParam(name string, rows, cols int) *Param {
	p := &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
	p.value = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(p.Value.RawMatrix().Data))
	p.grad = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(p.Grad.RawMatrix().Data))
	return p
}

// ZeroGrad clears the accumulated gradient
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Size returns the number of scalars
func (p *Param) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

// node places a copy of the parameter into g
func (p *Param) node(g *gorgonia.ExprGraph) *gorgonia.Node {
	r, c := p.Value.Dims()
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(r, c),
		gorgonia.WithName(p.Name),
		gorgonia.WithValue(denseTensor(p.Value)))
}

// solverParam exposes a Param to gorgonia solvers
type solverParam struct{ p *Param }

func (s *solverParam) Value() gorgonia.Value { return s.p.value }

func (s *solverParam) Grad() (gorgonia.Value, error) { return s.p.grad, nil }

// Dense is a fully connected layer Y = X·W + b with W of shape in×out and b of shape 1×out
type Dense struct {
	W *Param
	B *Param
}

// NewDense initializes weights and bias uniformly in ±1/sqrt(in)
func NewDense(name string, in, out int, r *rand.Rand) *Dense {
	d := &Dense{
		W: newParam(name+".weight", in, out),
		B: newParam(name+".bias", 1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	u := distuv.Uniform{Min: -bound, Max: bound, Src: r}
	for _, p := range []*Param{d.W, d.B} {
		data := p.Value.RawMatrix().Data
		for i := range data {
			data[i] = u.Rand()
		}
	}
	return d
}

// In returns the input width
func (d *Dense) In() int {
	r, _ := d.W.Value.Dims()
	return r
}

// Out returns the output width
func (d *Dense) Out() int {
	_, c := d.W.Value.Dims()
	return c
}

// apply adds the layer to a graph, returning the pre-activation and the parameter nodes
func (d *Dense) apply(g *gorgonia.ExprGraph, x *gorgonia.Node) (*gorgonia.Node, gorgonia.Nodes, error) {
	w, b := d.W.node(g), d.B.node(g)
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, nil, err
	}
	z, err := gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
	if err != nil {
		return nil, nil, err
	}
	return z, gorgonia.Nodes{w, b}, nil
}

// Activation is an element-wise nonlinearity
type Activation int

const (
	Linear Activation = iota
	ReLU
	LeakyReLU
)

// LeakySlope is the negative-side slope of LeakyReLU
const LeakySlope = 0.2

func (a Activation) String() string {
	switch a {
	case ReLU:
		return "relu"
	case LeakyReLU:
		return "leaky_relu"
	default:
		return "linear"
	}
}

func (a Activation) apply(z *gorgonia.Node) (*gorgonia.Node, error) {
	switch a {
	case ReLU:
		return gorgonia.Rectify(z)
	case LeakyReLU:
		return gorgonia.LeakyRelu(z, LeakySlope)
	default:
		return z, nil
	}
}

// denseTensor copies a matrix into a fresh row-major tensor
func denseTensor(m mat.Matrix) *tensor.Dense {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, mat.Row(nil, i, m)...)
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(data))
}

// vectorTensor copies a slice into a fresh tensor
func vectorTensor(v []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(v)), tensor.WithBacking(append([]float64(nil), v...)))
}
