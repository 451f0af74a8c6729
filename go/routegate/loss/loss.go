// Package loss implements the pluggable loss kernel (spec.md §4.2): given
// predictions and targets it returns a scalar loss and dL/dpred. It is
// grounded on go/neuro/loss/loss.go's Forward/Backward split, extended
// with label smoothing, huber, and focal.
package loss

import (
	"math"

	"github.com/muchq/routegate/go/routegate/config"
)

const clampFloor = 1e-10

// Kernel computes a scalar loss and its gradient with respect to
// predictions for one sample (or one flattened batch, per cfg.Type's own
// normalization convention).
type Kernel interface {
	Compute(predictions, targets []float32, cfg config.LossConfig) (lossVal float32, grad []float32, err error)
	Name() string
}

// ForType resolves a Kernel for a config.LossType, or config.ErrConfig if
// the type is recognized but not implemented (contrastive/triplet/ranking)
// or altogether unknown.
func ForType(t config.LossType) (Kernel, error) {
	switch t {
	case config.LossCrossEntropy:
		return CrossEntropy{}, nil
	case config.LossBCE:
		return BCE{}, nil
	case config.LossMSE:
		return MSE{}, nil
	case config.LossHuber:
		return Huber{}, nil
	case config.LossFocal:
		return Focal{}, nil
	default:
		return nil, config.Wrapper(config.ErrConfig, "unknown or unimplemented loss type: "+string(t))
	}
}

func clamp(p, lo, hi float64) float64 {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

// softmax performs a numerically stable softmax: subtract the max logit,
// exponentiate, normalize by the sum.
func softmax(logits []float32) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > max {
			max = float64(v)
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - max)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// CrossEntropy is softmax cross-entropy with optional label smoothing
// (spec.md §4.2).
type CrossEntropy struct{}

func (CrossEntropy) Name() string { return "cross_entropy" }

func (CrossEntropy) Compute(predictions, targets []float32, cfg config.LossConfig) (float32, []float32, error) {
	if len(predictions) != len(targets) {
		return 0, nil, config.Wrapper(config.ErrShape, "cross_entropy: predictions/targets length mismatch")
	}
	n := len(predictions)
	probs := softmax(predictions)
	s := float64(cfg.LabelSmoothing)

	var lossVal float64
	grad := make([]float32, n)
	for i := range probs {
		p := clamp(probs[i], clampFloor, 1)
		tPrime := float64(targets[i])*(1-s) + s/float64(n)
		lossVal -= tPrime * math.Log(p)
		grad[i] = float32(p - tPrime)
	}
	return float32(lossVal), grad, nil
}

// BCE is binary cross-entropy applied elementwise and averaged over N.
// The teacher's un-normalized gradient is a documented bug (spec.md §9);
// this kernel normalizes the gradient by N to match the averaged loss.
type BCE struct{}

func (BCE) Name() string { return "bce" }

func (BCE) Compute(predictions, targets []float32, cfg config.LossConfig) (float32, []float32, error) {
	if len(predictions) != len(targets) {
		return 0, nil, config.Wrapper(config.ErrShape, "bce: predictions/targets length mismatch")
	}
	n := len(predictions)
	var lossVal float64
	grad := make([]float32, n)
	for i, logit := range predictions {
		p := stableSigmoid(float64(logit))
		pc := clamp(p, clampFloor, 1)
		qc := clamp(1-p, clampFloor, 1)
		tgt := float64(targets[i])
		lossVal += -tgt*math.Log(pc) - (1-tgt)*math.Log(qc)
		grad[i] = float32((p - tgt) / float64(n))
	}
	return float32(lossVal / float64(n)), grad, nil
}

func stableSigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// MSE is mean squared error.
type MSE struct{}

func (MSE) Name() string { return "mse" }

func (MSE) Compute(predictions, targets []float32, cfg config.LossConfig) (float32, []float32, error) {
	if len(predictions) != len(targets) {
		return 0, nil, config.Wrapper(config.ErrShape, "mse: predictions/targets length mismatch")
	}
	n := len(predictions)
	var lossVal float64
	grad := make([]float32, n)
	for i, p := range predictions {
		e := float64(p) - float64(targets[i])
		lossVal += e * e
		grad[i] = float32(2 * e / float64(n))
	}
	return float32(lossVal / float64(n)), grad, nil
}

// Huber is the smooth L1 loss with delta = 1.
type Huber struct{}

func (Huber) Name() string { return "huber" }

func (Huber) Compute(predictions, targets []float32, cfg config.LossConfig) (float32, []float32, error) {
	if len(predictions) != len(targets) {
		return 0, nil, config.Wrapper(config.ErrShape, "huber: predictions/targets length mismatch")
	}
	const delta = 1.0
	n := len(predictions)
	var lossVal float64
	grad := make([]float32, n)
	for i, p := range predictions {
		e := float64(p) - float64(targets[i])
		ae := math.Abs(e)
		if ae <= delta {
			lossVal += 0.5 * e * e
			grad[i] = float32(e / float64(n))
		} else {
			lossVal += delta * (ae - 0.5*delta)
			sign := 1.0
			if e < 0 {
				sign = -1.0
			}
			grad[i] = float32(delta * sign / float64(n))
		}
	}
	return float32(lossVal / float64(n)), grad, nil
}

// Focal is softmax focal loss (Lin et al.), default gamma 2.0.
type Focal struct{}

func (Focal) Name() string { return "focal" }

func (Focal) Compute(predictions, targets []float32, cfg config.LossConfig) (float32, []float32, error) {
	if len(predictions) != len(targets) {
		return 0, nil, config.Wrapper(config.ErrShape, "focal: predictions/targets length mismatch")
	}
	gamma := float64(cfg.FocalGamma)
	if gamma == 0 {
		gamma = 2.0
	}
	probs := softmax(predictions)
	var lossVal float64
	grad := make([]float32, len(predictions))
	for i, p := range probs {
		pc := clamp(p, clampFloor, 1)
		t := float64(targets[i])
		lossVal -= math.Pow(1-pc, gamma) * t * math.Log(pc)
		grad[i] = float32(math.Pow(1-pc, gamma) * (gamma*pc*math.Log(pc) + pc - 1) * t)
	}
	return float32(lossVal), grad, nil
}
