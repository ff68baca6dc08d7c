package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
)

// MLP is a stack of dense layers; hidden layers share one activation and the last layer is linear,
// optionally followed by a softmax over consecutive groups of outputs
type MLP struct {
	name       string
	layers     []*Dense
	hidden     Activation
	groupWidth int
}

// Option configures an MLP
type Option func(*MLP) error

// WithGroupSoftmax normalizes every consecutive group of width outputs into a distribution
func WithGroupSoftmax(width int) Option {
	return func(m *MLP) error {
		if width < 1 || m.OutputSize()%width != 0 {
			return fmt.Errorf("mlp %s: softmax groups of %d do not tile %d outputs", m.name, width, m.OutputSize())
		}
		m.groupWidth = width
		return nil
	}
}

// Trace is one forward evaluation, kept so Backward can differentiate the same batch
type Trace struct {
	input  *mat.Dense
	Output *mat.Dense
}

// NewMLP builds a network over sizes = [in, hidden..., out]
func NewMLP(name string, sizes []int, hidden Activation, r *rand.Rand, opts ...Option) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("mlp %s: need at least input and output sizes, got %v", name, sizes)
	}
	for _, s := range sizes {
		if s < 1 {
			return nil, fmt.Errorf("mlp %s: layer sizes must be positive, got %v", name, sizes)
		}
	}
	m := &MLP{name: name, hidden: hidden}
	for i := 0; i+1 < len(sizes); i++ {
		m.layers = append(m.layers, NewDense(fmt.Sprintf("%s.%d", name, i), sizes[i], sizes[i+1], r))
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name returns the parameter name prefix
func (m *MLP) Name() string { return m.name }

// InputSize returns the expected row width
func (m *MLP) InputSize() int { return m.layers[0].In() }

// OutputSize returns the output row width
func (m *MLP) OutputSize() int { return m.layers[len(m.layers)-1].Out() }

// Layers exposes the dense layers
func (m *MLP) Layers() []*Dense { return m.layers }

// expr is the network applied to one batch inside a graph
type expr struct {
	g      *gorgonia.ExprGraph
	x      *gorgonia.Node
	params gorgonia.Nodes
	out    *gorgonia.Node
}

func (m *MLP) build(x *mat.Dense) (*expr, error) {
	rows, cols := x.Dims()
	if cols != m.InputSize() {
		return nil, fmt.Errorf("mlp %s: %w", m.name, core.NewShapeError("input width", m.InputSize(), cols))
	}
	g := gorgonia.NewGraph()
	e := &expr{g: g}
	e.x = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cols),
		gorgonia.WithName(m.name+".input"),
		gorgonia.WithValue(denseTensor(x)))

	h := e.x
	last := len(m.layers) - 1
	for i, l := range m.layers {
		z, params, err := l.apply(g, h)
		if err != nil {
			return nil, fmt.Errorf("mlp %s layer %d: %w", m.name, i, err)
		}
		e.params = append(e.params, params...)
		if i == last {
			h = z
			continue
		}
		if h, err = m.hidden.apply(z); err != nil {
			return nil, fmt.Errorf("mlp %s layer %d: %w", m.name, i, err)
		}
	}

	if m.groupWidth > 0 {
		out := m.OutputSize()
		grouped, err := gorgonia.Reshape(h, tensor.Shape{rows * out / m.groupWidth, m.groupWidth})
		if err != nil {
			return nil, err
		}
		sm, err := gorgonia.SoftMax(grouped)
		if err != nil {
			return nil, err
		}
		if h, err = gorgonia.Reshape(sm, tensor.Shape{rows, out}); err != nil {
			return nil, err
		}
	}
	e.out = h
	return e, nil
}

func run(g *gorgonia.ExprGraph) error {
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	return vm.RunAll()
}

// Infer runs a batch
func (m *MLP) Infer(x *mat.Dense) (*mat.Dense, error) {
	e, err := m.build(x)
	if err != nil {
		return nil, err
	}
	if err := run(e.g); err != nil {
		return nil, fmt.Errorf("mlp %s forward: %w", m.name, err)
	}
	rows, _ := x.Dims()
	data, err := values(e.out.Value())
	if err != nil {
		return nil, err
	}
	return mat.NewDense(rows, m.OutputSize(), append([]float64(nil), data...)), nil
}

// Forward runs a batch and keeps it for Backward
func (m *MLP) Forward(x *mat.Dense) (*Trace, error) {
	out, err := m.Infer(x)
	if err != nil {
		return nil, err
	}
	return &Trace{input: mat.DenseCopyOf(x), Output: out}, nil
}

// Backward accumulates parameter gradients for dOut and returns the input gradient
func (m *MLP) Backward(t *Trace, dOut *mat.Dense) (*mat.Dense, error) {
	return m.backward(t, dOut, true)
}

// InputGrad returns the input gradient for dOut without touching parameter gradients
func (m *MLP) InputGrad(t *Trace, dOut *mat.Dense) (*mat.Dense, error) {
	return m.backward(t, dOut, false)
}

// backward differentiates Σ dOut ⊙ output, whose gradients are the vector-Jacobian products
func (m *MLP) backward(t *Trace, dOut *mat.Dense, accumulate bool) (*mat.Dense, error) {
	e, err := m.build(t.input)
	if err != nil {
		return nil, err
	}
	rows, cols := dOut.Dims()
	if or, oc := t.Output.Dims(); or != rows || oc != cols {
		return nil, fmt.Errorf("mlp %s: %w", m.name, core.NewShapeError("output gradient size", or*oc, rows*cols))
	}
	upstream := gorgonia.NewMatrix(e.g, tensor.Float64,
		gorgonia.WithShape(rows, cols),
		gorgonia.WithName(m.name+".upstream"),
		gorgonia.WithValue(denseTensor(dOut)))
	weighted, err := gorgonia.HadamardProd(e.out, upstream)
	if err != nil {
		return nil, err
	}
	cost, err := gorgonia.Sum(weighted)
	if err != nil {
		return nil, err
	}

	wrt := gorgonia.Nodes{e.x}
	if accumulate {
		wrt = append(wrt, e.params...)
	}
	grads, err := gorgonia.Grad(cost, wrt...)
	if err != nil {
		return nil, fmt.Errorf("mlp %s gradient: %w", m.name, err)
	}
	if err := run(e.g); err != nil {
		return nil, fmt.Errorf("mlp %s backward: %w", m.name, err)
	}

	dx, err := values(grads[0].Value())
	if err != nil {
		return nil, err
	}
	if accumulate {
		for i, p := range m.Params() {
			g, err := values(grads[i+1].Value())
			if err != nil {
				return nil, err
			}
			floats.Add(p.Grad.RawMatrix().Data, g)
		}
	}
	in, _ := t.input.Dims()
	return mat.NewDense(in, m.InputSize(), append([]float64(nil), dx...)), nil
}

// Params lists weights and biases layer by layer
func (m *MLP) Params() []*Param {
	out := make([]*Param, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.W, l.B)
	}
	return out
}

// ZeroGrad clears every parameter gradient
func (m *MLP) ZeroGrad() {
	for _, p := range m.Params() {
		p.ZeroGrad()
	}
}

// Snapshot copies the parameters into persistable tensors
func (m *MLP) Snapshot() []checkpoint.Tensor {
	params := m.Params()
	out := make([]checkpoint.Tensor, len(params))
	for i, p := range params {
		r, c := p.Value.Dims()
		data := make([]float64, r*c)
		copy(data, p.Value.RawMatrix().Data)
		out[i] = checkpoint.Tensor{Name: p.Name, Rows: r, Cols: c, Data: data}
	}
	return out
}

// Restore loads tensors written by Snapshot; names and shapes must match exactly
func (m *MLP) Restore(tensors []checkpoint.Tensor) error {
	params := m.Params()
	if len(tensors) != len(params) {
		return fmt.Errorf("mlp %s: %w", m.name, core.NewShapeError("tensor count", len(params), len(tensors)))
	}
	for i, p := range params {
		t := tensors[i]
		r, c := p.Value.Dims()
		if t.Name != p.Name {
			return fmt.Errorf("mlp %s: %w: tensor %d is %q, want %q", m.name, core.ErrShapeMismatch, i, t.Name, p.Name)
		}
		if t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return fmt.Errorf("mlp %s: %w: %s is %dx%d, want %dx%d", m.name, core.ErrShapeMismatch, p.Name, t.Rows, t.Cols, r, c)
		}
	}
	for i, p := range params {
		copy(p.Value.RawMatrix().Data, tensors[i].Data)
	}
	return nil
}

// values reads the float64 data of a gorgonia value
func values(v gorgonia.Value) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("nn: node has no value")
	}
	switch d := v.Data().(type) {
	case []float64:
		return d, nil
	case float64:
		return []float64{d}, nil
	default:
		return nil, fmt.Errorf("nn: unexpected value data %T", d)
	}
}

// Rows wraps flat row-major data as a batch matrix
func Rows(rows, cols int, data []float64) *mat.Dense {
	return mat.NewDense(rows, cols, data)
}

// Column returns column j of a batch as a fresh slice
func Column(m *mat.Dense, j int) []float64 {
	rows, _ := m.Dims()
	out := make([]float64, rows)
	mat.Col(out, j, m)
	return out
}
