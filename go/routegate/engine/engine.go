// Package engine implements the Trainer (spec.md §4.9): the component
// that drives one epoch end to end -- batch loop, loss, gradient
// pipeline, optimizer step, weight constraints, pruning, scheduling, and
// metrics/history bookkeeping. Grounded on go/neuro/network/model.go's
// Fit loop, restructured around a flat named parameter set instead of a
// layer graph.
package engine

import (
	"context"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	goclock "github.com/muchq/routegate/go/clock"
	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/constraints"
	"github.com/muchq/routegate/go/routegate/loss"
	"github.com/muchq/routegate/go/routegate/optim"
	"github.com/muchq/routegate/go/routegate/prune"
	"github.com/muchq/routegate/go/routegate/regularize"
	"github.com/muchq/routegate/go/routegate/schedule"
	"github.com/muchq/routegate/go/routegate/tensor"
)

// ForwardBackward is the external model collaborator (spec.md §9): given
// the current parameter set and one sample's input, produce predictions;
// given dL/dpred, attribute it back to every parameter that contributed.
// The router's forward/backward math (FastGRNN gating, attention feature
// extraction) lives entirely behind this contract -- the trainer never
// inspects model internals.
type ForwardBackward interface {
	Forward(params map[string]*tensor.Tensor, input *tensor.Tensor) (predictions *tensor.Tensor, err error)
	Backward(params map[string]*tensor.Tensor, dLdPred []float32) (grads map[string][]float32, err error)
}

// Sample is one labeled routing example: input and target are both 1-D
// and of equal length (spec.md §6).
type Sample struct {
	Input  *tensor.Tensor
	Target *tensor.Tensor
}

// Dataset is drawn from in order, split into fixed-size mini-batches.
type Dataset []Sample

// Metrics is the per-epoch observable record (spec.md §6).
type Metrics struct {
	Epoch         int
	TrainLoss     float32
	ValLoss       float32
	TrainAccuracy float32
	ValAccuracy   float32
	LearningRate  float32
	GradientNorm  float32
	Sparsity      float32
	EpochTimeMs   int64
	Warnings      []tensor.NumericWarning
}

// Trainer owns the parameter set, pruning manager, optimizer, scheduler,
// history, and early-stop counters exclusively (spec.md §3 "Ownership").
type Trainer struct {
	RunID uuid.UUID

	cfg       config.Config
	params    map[string]*tensor.Tensor
	model     ForwardBackward
	lossKern  loss.Kernel
	gradClip  constraints.Gradient
	weightCon map[string]constraints.Weight
	optimizer optim.Optimizer
	scheduler *schedule.Scheduler
	pruning   *prune.Manager
	scaler    *optim.GradScaler
	clk       goclock.Clock
	batchSize int

	history    []Metrics
	bestMetric float32
	hasBest    bool
	badEpochs  int
}

// New validates cfg, builds every collaborator it names, registers every
// parameter with the pruning manager, and returns a ready Trainer.
func New(cfg config.Config, params map[string]*tensor.Tensor, model ForwardBackward, batchSize int, clk goclock.Clock) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lossKern, err := loss.ForType(cfg.Loss.Type)
	if err != nil {
		return nil, err
	}
	optimizer, err := optim.New(cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	scheduler, err := schedule.New(cfg.Optimizer.LearningRate, cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	rng := newSeededRand(cfg.Seed)
	pruning, err := prune.NewManager(cfg.Pruning, rng)
	if err != nil {
		return nil, err
	}

	estimator := constraints.NewSpectralEstimator(len(params))
	weightCon := make(map[string]constraints.Weight, len(params))
	for name, p := range params {
		wc := cfg.Bounded.WeightConstraints[name]
		c, err := constraints.New(wc, name, estimator)
		if err != nil {
			return nil, err
		}
		weightCon[name] = c
		pruning.Register(name, p)
	}

	var scaler *optim.GradScaler
	if cfg.MixedPrecision {
		scaler = optim.NewGradScaler()
	}

	if clk == nil {
		clk = goclock.NewSystemUtcClock()
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	return &Trainer{
		RunID:     uuid.New(),
		cfg:       cfg,
		params:    params,
		model:     model,
		lossKern:  lossKern,
		weightCon: weightCon,
		optimizer: optimizer,
		scheduler: scheduler,
		pruning:   pruning,
		scaler:    scaler,
		clk:       clk,
		batchSize: batchSize,
	}, nil
}

// TrainEpoch drives one full epoch over train (and, if non-nil, val) per
// the ten-step sequence of spec.md §4.9. ctx is checked once per batch
// boundary; a cancellation observed there aborts the epoch and discards
// its partial metrics record (spec.md §5), but parameters keep whatever
// partial updates they already received.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int, train, val Dataset) (Metrics, error) {
	start := t.clk.Now()

	var trainLosses []float64
	var trainCorrect, trainSeen int
	var lastGradNorm float32
	var warnings []tensor.NumericWarning

	for _, batch := range batchesOf(train, t.batchSize) {
		select {
		case <-ctx.Done():
			return Metrics{}, ctx.Err()
		default:
		}

		t.optimizer.ZeroGrad(t.params)

		for _, sample := range batch {
			predictions, err := t.model.Forward(t.params, sample.Input)
			if err != nil {
				return Metrics{}, err
			}
			if len(predictions.Data) != len(sample.Target.Data) {
				return Metrics{}, config.Wrapper(config.ErrShape, "prediction/target length mismatch")
			}
			lossVal, grad, err := t.lossKern.Compute(predictions.Data, sample.Target.Data, t.cfg.Loss)
			if err != nil {
				return Metrics{}, err
			}
			trainLosses = append(trainLosses, float64(lossVal))
			trainSeen++
			if argmax(predictions.Data) == argmax(sample.Target.Data) {
				trainCorrect++
			}

			if t.scaler != nil {
				for i := range grad {
					grad[i] *= t.scaler.Scale
				}
			}
			gradMap, err := t.model.Backward(t.params, grad)
			if err != nil {
				return Metrics{}, err
			}
			accumulateGrads(t.params, gradMap)
		}

		if t.scaler != nil {
			t.scaler.Unscale(t.params)
		}

		lastGradNorm = t.gradClip.Apply(t.params, t.cfg.Bounded.GradientConstraints)
		regularize.Inject(t.params, t.cfg.Bounded)

		allFinite := true
		for name, p := range t.params {
			if !p.GradIsFinite() {
				allFinite = false
				warnings = append(warnings, tensor.NumericWarning{Name: name, Epoch: epoch, InGrad: true})
			}
		}

		applyStep := true
		if t.scaler != nil {
			applyStep = t.scaler.Update(allFinite)
		}
		if applyStep {
			if err := t.optimizer.Step(t.params); err != nil {
				return Metrics{}, err
			}
			for name, p := range t.params {
				if err := t.weightCon[name].Apply(p); err != nil {
					return Metrics{}, err
				}
				if !p.IsFinite() {
					warnings = append(warnings, tensor.NumericWarning{Name: name, Epoch: epoch, InData: true})
				}
			}
		}
	}

	var trainLoss, trainAcc float32
	if trainSeen > 0 {
		trainLoss = float32(stat.Mean(trainLosses, nil))
		trainAcc = float32(trainCorrect) / float32(trainSeen)
	}

	var valLoss, valAcc float32
	var valLossPtr *float32
	if len(val) > 0 {
		var losses []float64
		var correct int
		for _, sample := range val {
			predictions, err := t.model.Forward(t.params, sample.Input)
			if err != nil {
				return Metrics{}, err
			}
			lossVal, _, err := t.lossKern.Compute(predictions.Data, sample.Target.Data, t.cfg.Loss)
			if err != nil {
				return Metrics{}, err
			}
			losses = append(losses, float64(lossVal))
			if argmax(predictions.Data) == argmax(sample.Target.Data) {
				correct++
			}
		}
		valLoss = float32(stat.Mean(losses, nil))
		valAcc = float32(correct) / float32(len(val))
		valLossPtr = &valLoss
	}

	lr := t.scheduler.Step(epoch, valLossPtr)
	t.optimizer.SetLR(lr)

	if t.pruning.ShouldPrune(epoch) {
		for name, p := range t.params {
			if err := t.pruning.Prune(name, p, epoch); err != nil {
				return Metrics{}, err
			}
		}
	}
	sparsity := t.pruning.Stats().Aggregate

	m := Metrics{
		Epoch:         epoch,
		TrainLoss:     trainLoss,
		ValLoss:       valLoss,
		TrainAccuracy: trainAcc,
		ValAccuracy:   valAcc,
		LearningRate:  lr,
		GradientNorm:  lastGradNorm,
		Sparsity:      sparsity,
		EpochTimeMs:   t.clk.Now().Sub(start).Milliseconds(),
		Warnings:      warnings,
	}
	t.history = append(t.history, m)

	if valLossPtr != nil {
		minDelta := t.cfg.EarlyStopping.MinDelta
		if !t.hasBest || *valLossPtr < t.bestMetric-minDelta {
			t.bestMetric = *valLossPtr
			t.hasBest = true
			t.badEpochs = 0
		} else {
			t.badEpochs++
		}
	}

	return m, nil
}

// ShouldStop reports whether early stopping has triggered.
func (t *Trainer) ShouldStop() bool {
	return t.cfg.EarlyStopping.Enabled && t.badEpochs >= t.cfg.EarlyStopping.Patience
}

// History returns the accumulated per-epoch metrics records.
func (t *Trainer) History() []Metrics { return t.history }

func batchesOf(d Dataset, size int) []Dataset {
	if size <= 0 {
		size = len(d)
	}
	var out []Dataset
	for i := 0; i < len(d); i += size {
		end := i + size
		if end > len(d) {
			end = len(d)
		}
		out = append(out, d[i:end])
	}
	return out
}

func accumulateGrads(params map[string]*tensor.Tensor, grads map[string][]float32) {
	for name, g := range grads {
		p, ok := params[name]
		if !ok || p.Grad == nil {
			continue
		}
		for i, v := range g {
			p.Grad[i] += v
		}
	}
}

func argmax(data []float32) int {
	best, bestI := float32(math.Inf(-1)), -1
	for i, v := range data {
		if v > best {
			best, bestI = v, i
		}
	}
	return bestI
}

func newSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
