// Package schedule implements the learning-rate scheduler (spec.md §4.7):
// warmup followed by one of {constant, step, exponential, cosine,
// cosine_warmup, linear_warmup, one_cycle, reduce_on_plateau}.
package schedule

import (
	"math"

	"github.com/muchq/routegate/go/routegate/config"
)

// Scheduler produces a learning rate per epoch given history and an
// optional metric (for reduce_on_plateau).
type Scheduler struct {
	cfg        config.SchedulerConfig
	baseLr     float32
	currentLr  float32
	bestMetric float32
	hasBest    bool
	badEpochs  int
}

// New builds a Scheduler, or returns config.ErrConfig if cfg.Type is
// unrecognized (no scheduler type is "config-only" in this spec; all
// eight named types are implemented).
func New(baseLr float32, cfg config.SchedulerConfig) (*Scheduler, error) {
	switch cfg.Type {
	case config.SchedulerConstant, config.SchedulerStep, config.SchedulerExponential,
		config.SchedulerCosine, config.SchedulerCosineWarmup, config.SchedulerLinearWarmup,
		config.SchedulerOneCycle, config.SchedulerReduceOnPlateau:
	default:
		return nil, config.Wrapper(config.ErrConfig, "unknown scheduler type: "+string(cfg.Type))
	}
	return &Scheduler{cfg: cfg, baseLr: baseLr, currentLr: baseLr}, nil
}

func (s *Scheduler) minLr() float32 {
	return s.cfg.MinLr
}

func clampMin(lr, minLr float32) float32 {
	if lr < minLr {
		return minLr
	}
	return lr
}

// Step returns the learning rate for epoch, consulting metric for
// reduce_on_plateau. epoch is zero-based.
func (s *Scheduler) Step(epoch int, metric *float32) float32 {
	if epoch < s.cfg.WarmupEpochs {
		return s.baseLr * float32(epoch+1) / float32(s.cfg.WarmupEpochs)
	}
	e := epoch - s.cfg.WarmupEpochs

	switch s.cfg.Type {
	case config.SchedulerConstant:
		return clampMin(s.baseLr, s.minLr())

	case config.SchedulerStep:
		gamma := s.cfg.Gamma
		if gamma == 0 {
			gamma = 0.1
		}
		stepSize := s.cfg.StepSize
		if stepSize == 0 {
			stepSize = 30
		}
		lr := s.baseLr * float32(math.Pow(float64(gamma), float64(e/stepSize)))
		return clampMin(lr, s.minLr())

	case config.SchedulerExponential:
		gamma := s.cfg.Gamma
		if gamma == 0 {
			gamma = 0.95
		}
		lr := s.baseLr * float32(math.Pow(float64(gamma), float64(e)))
		return clampMin(lr, s.minLr())

	case config.SchedulerCosine, config.SchedulerCosineWarmup:
		tMax := s.cfg.TMax
		if tMax == 0 {
			tMax = 100
		}
		minLr := s.minLr()
		lr := minLr + (s.baseLr-minLr)*float32(1+math.Cos(math.Pi*float64(e)/float64(tMax)))/2
		return clampMin(lr, minLr)

	case config.SchedulerLinearWarmup:
		tMax := s.cfg.TMax
		if tMax == 0 {
			tMax = 100
		}
		lr := s.baseLr * (1 - float32(e)/float32(tMax))
		return clampMin(lr, s.minLr())

	case config.SchedulerOneCycle:
		tMax := s.cfg.TMax
		if tMax == 0 {
			tMax = 100
		}
		maxLr := s.cfg.MaxLr
		if maxLr == 0 {
			maxLr = 10 * s.baseLr
		}
		p := float32(e) / float32(tMax)
		var lr float32
		if p < 0.3 {
			lr = s.baseLr + (maxLr-s.baseLr)*(p/0.3)
		} else {
			remaining := (p - 0.3) / 0.7
			lr = maxLr - (maxLr-s.minLr())*remaining
		}
		return clampMin(lr, s.minLr())

	case config.SchedulerReduceOnPlateau:
		return s.stepPlateau(metric)

	default:
		return clampMin(s.currentLr, s.minLr())
	}
}

func (s *Scheduler) stepPlateau(metric *float32) float32 {
	minDelta := s.cfg.MinDelta
	patience := s.cfg.Patience
	if patience == 0 {
		patience = 10
	}
	gamma := s.cfg.Gamma
	if gamma == 0 {
		gamma = 0.1
	}

	if metric != nil {
		if !s.hasBest || *metric < s.bestMetric-minDelta {
			s.bestMetric = *metric
			s.hasBest = true
			s.badEpochs = 0
		} else {
			s.badEpochs++
		}
		if s.badEpochs >= patience {
			s.currentLr = clampMin(s.currentLr*gamma, s.minLr())
			s.badEpochs = 0
		}
	}
	return clampMin(s.currentLr, s.minLr())
}
