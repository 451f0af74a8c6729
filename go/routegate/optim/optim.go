// Package optim implements the optimizer suite (spec.md §4.6): SGD with
// classical/Nesterov momentum and Adam/AdamW with bias correction and
// decoupled weight decay, both operating in place on the parameter store.
// State is keyed by parameter name (not identity), per spec.md §9.
package optim

import (
	"math"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

// Optimizer is the shared surface both variants expose (spec.md §4.6).
type Optimizer interface {
	Step(params map[string]*tensor.Tensor) error
	ZeroGrad(params map[string]*tensor.Tensor)
	GetLR() float32
	SetLR(float32)
	Name() string
}

// New builds the optimizer named by cfg.Type, or config.ErrConfig if the
// type is recognized but not implemented (rmsprop/adagrad/lamb/sophia).
func New(cfg config.OptimizerConfig) (Optimizer, error) {
	switch cfg.Type {
	case config.OptimizerSGD:
		return &SGD{
			lr:       cfg.LearningRate,
			momentum: cfg.Momentum,
			nesterov: cfg.Nesterov,
			velocity: map[string]*tensor.Tensor{},
		}, nil
	case config.OptimizerAdam, config.OptimizerAdamW:
		eps := cfg.Epsilon
		if eps == 0 {
			eps = 1e-8
		}
		return &Adam{
			lr:           cfg.LearningRate,
			beta1:        cfg.Beta1,
			beta2:        cfg.Beta2,
			epsilon:      eps,
			weightDecay:  cfg.WeightDecay,
			decoupled:    cfg.Type == config.OptimizerAdamW,
			m:            map[string]*tensor.Tensor{},
			v:            map[string]*tensor.Tensor{},
		}, nil
	default:
		return nil, config.Wrapper(config.ErrConfig, "unimplemented optimizer type: "+string(cfg.Type))
	}
}

// SGD implements classical and Nesterov momentum (spec.md §4.6, S1).
type SGD struct {
	lr       float32
	momentum float32
	nesterov bool
	velocity map[string]*tensor.Tensor
}

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) GetLR() float32   { return s.lr }
func (s *SGD) SetLR(lr float32) { s.lr = lr }

func (s *SGD) ZeroGrad(params map[string]*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

func (s *SGD) Step(params map[string]*tensor.Tensor) error {
	for name, p := range params {
		if p.Grad == nil {
			continue
		}
		v, ok := s.velocity[name]
		if !ok {
			v = tensor.Zeros(p.Shape...)
			s.velocity[name] = v
		}
		for i, g := range p.Grad {
			v.Data[i] = s.momentum*v.Data[i] + g
			if s.nesterov {
				p.Data[i] -= s.lr * (g + s.momentum*v.Data[i])
			} else {
				p.Data[i] -= s.lr * v.Data[i]
			}
		}
	}
	return nil
}

// Velocity exposes the opaque per-name state view for checkpointing.
func (s *SGD) Velocity() map[string]*tensor.Tensor { return s.velocity }

// Adam implements Adam/AdamW with bias correction and, for AdamW,
// decoupled weight decay applied after the Adam update (spec.md §4.6, S2).
type Adam struct {
	lr          float32
	beta1       float32
	beta2       float32
	epsilon     float32
	weightDecay float32
	decoupled   bool
	t           int
	m           map[string]*tensor.Tensor
	v           map[string]*tensor.Tensor
}

func (a *Adam) Name() string {
	if a.decoupled {
		return "adamw"
	}
	return "adam"
}

func (a *Adam) GetLR() float32   { return a.lr }
func (a *Adam) SetLR(lr float32) { a.lr = lr }

func (a *Adam) ZeroGrad(params map[string]*tensor.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Step increments the global step counter exactly once, regardless of how
// many parameters are updated (spec.md §4.6, §5, P7).
func (a *Adam) Step(params map[string]*tensor.Tensor) error {
	a.t++
	b1c := float32(1 - math.Pow(float64(a.beta1), float64(a.t)))
	b2c := float32(1 - math.Pow(float64(a.beta2), float64(a.t)))

	for name, p := range params {
		if p.Grad == nil {
			continue
		}
		m, ok := a.m[name]
		if !ok {
			m = tensor.Zeros(p.Shape...)
			a.m[name] = m
		}
		v, ok := a.v[name]
		if !ok {
			v = tensor.Zeros(p.Shape...)
			a.v[name] = v
		}
		for i, g := range p.Grad {
			m.Data[i] = a.beta1*m.Data[i] + (1-a.beta1)*g
			v.Data[i] = a.beta2*v.Data[i] + (1-a.beta2)*g*g
			mHat := m.Data[i] / b1c
			vHat := v.Data[i] / b2c
			p.Data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.epsilon)
		}
		if a.decoupled && a.weightDecay > 0 {
			decay := 1 - a.lr*a.weightDecay
			for i := range p.Data {
				p.Data[i] *= decay
			}
		}
	}
	return nil
}

// StepCount returns the current global step counter.
func (a *Adam) StepCount() int { return a.t }

// State exposes the opaque per-name moment views for checkpointing.
func (a *Adam) State() (m, v map[string]*tensor.Tensor) { return a.m, a.v }
