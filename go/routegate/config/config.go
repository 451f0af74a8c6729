// Package config defines the training engine's configuration surface:
// the nested option record enumerated in spec.md §6, its defaults, the
// three named presets, and the error sentinels the rest of routegate
// wraps (config.Wrapper/ErrConfig/ErrShape/ErrState).
package config

// OptimizerType selects the optimizer variant. rmsprop, adagrad, lamb, and
// sophia are recognized so callers can round-trip config, but are
// rejected with ErrConfig at first use -- this module never silently
// falls back to SGD for an unimplemented type.
type OptimizerType string

const (
	OptimizerSGD     OptimizerType = "sgd"
	OptimizerAdam    OptimizerType = "adam"
	OptimizerAdamW   OptimizerType = "adamw"
	OptimizerRMSProp OptimizerType = "rmsprop"
	OptimizerAdagrad OptimizerType = "adagrad"
	OptimizerLAMB    OptimizerType = "lamb"
	OptimizerSophia  OptimizerType = "sophia"
)

// SchedulerType selects the learning-rate schedule shape.
type SchedulerType string

const (
	SchedulerConstant        SchedulerType = "constant"
	SchedulerStep            SchedulerType = "step"
	SchedulerExponential     SchedulerType = "exponential"
	SchedulerCosine          SchedulerType = "cosine"
	SchedulerCosineWarmup    SchedulerType = "cosine_warmup"
	SchedulerLinearWarmup    SchedulerType = "linear_warmup"
	SchedulerOneCycle        SchedulerType = "one_cycle"
	SchedulerReduceOnPlateau SchedulerType = "reduce_on_plateau"
)

// LossType selects the loss kernel. contrastive, triplet, and ranking are
// recognized but rejected with ErrConfig -- no embedding pairing/triplet
// mining is in scope for this engine.
type LossType string

const (
	LossCrossEntropy LossType = "cross_entropy"
	LossBCE          LossType = "bce"
	LossMSE          LossType = "mse"
	LossHuber        LossType = "huber"
	LossFocal        LossType = "focal"
	LossContrastive  LossType = "contrastive"
	LossTriplet      LossType = "triplet"
	LossRanking      LossType = "ranking"
)

// PruningStrategy selects the mask-scoring strategy. structured_channel,
// structured_head, and sensitivity are config-only (spec.md §6) and are
// rejected with ErrConfig, not silently skipped.
type PruningStrategy string

const (
	PruningNone              PruningStrategy = "none"
	PruningMagnitude         PruningStrategy = "magnitude"
	PruningRandom            PruningStrategy = "random"
	PruningStructuredChannel PruningStrategy = "structured_channel"
	PruningStructuredHead    PruningStrategy = "structured_head"
	PruningLotteryTicket     PruningStrategy = "lottery_ticket"
	PruningMovement          PruningStrategy = "movement"
	PruningSensitivity       PruningStrategy = "sensitivity"
)

// PruningSchedule selects the target-sparsity-over-epochs curve.
type PruningSchedule string

const (
	ScheduleOneShot  PruningSchedule = "one_shot"
	ScheduleGradual  PruningSchedule = "gradual"
	ScheduleCubic    PruningSchedule = "cubic"
	ScheduleExponent PruningSchedule = "exponential"
)

// Axis selects the scope a weight constraint is applied over.
type Axis string

const (
	AxisGlobal Axis = "global"
	AxisRow    Axis = "row"
	AxisColumn Axis = "column"
)

// WeightConstraintType selects the per-tensor projection.
type WeightConstraintType string

const (
	ConstraintNone        WeightConstraintType = "none"
	ConstraintMaxNorm     WeightConstraintType = "max_norm"
	ConstraintUnitNorm    WeightConstraintType = "unit_norm"
	ConstraintMinMax      WeightConstraintType = "min_max"
	ConstraintNonNegative WeightConstraintType = "non_negative"
	ConstraintSpectral    WeightConstraintType = "spectral"
)

// WeightConstraintConfig configures one §4.3 constraint.
type WeightConstraintConfig struct {
	Type       WeightConstraintType
	MaxNorm    float32
	Axis       Axis
	MinValue   float32
	MaxValue   float32
	Iterations int // power-iteration count for ConstraintSpectral, default 1
}

// GradientConstraintConfig configures the §4.4 clipping pass.
type GradientConstraintConfig struct {
	ClipGradients         bool
	ClipNorm              *float32
	ClipValue             *float32
	EnableGradientScaling bool
}

// OptimizerConfig configures the §4.6 optimizer.
type OptimizerConfig struct {
	Type         OptimizerType
	LearningRate float32
	WeightDecay  float32
	Momentum     float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	Nesterov     bool
}

// SchedulerConfig configures the §4.7 LR schedule.
type SchedulerConfig struct {
	Type          SchedulerType
	WarmupEpochs  int
	StepSize      int
	Gamma         float32
	MinLr         float32
	MaxLr         float32
	Patience      int
	TMax          int
	MinDelta      float32
}

// LossConfig configures the §4.2 loss kernel.
type LossConfig struct {
	Type           LossType
	LabelSmoothing float32
	FocalGamma     float32
	Margin         float32
	Temperature    float32
}

// BoundedConfig groups weight/gradient constraints and regularization,
// matching spec.md §6's "bounded" config group.
type BoundedConfig struct {
	WeightConstraints map[string]WeightConstraintConfig // keyed by parameter name
	GradientConstraints GradientConstraintConfig
	L1Regularization  float32
	L2Regularization  float32
	ElasticNetRatio   float32
}

// PruningConfig configures the §4.8 pruning manager.
type PruningConfig struct {
	Strategy         PruningStrategy
	TargetSparsity   float32
	Schedule         PruningSchedule
	StartEpoch       int
	EndEpoch         int
	Frequency        int
	LayerSparsity    map[string]float32
	EnableRewinding  bool
	RewindEpoch      int
}

// EarlyStoppingConfig configures §4.9 step 10's bookkeeping.
type EarlyStoppingConfig struct {
	Enabled       bool
	Patience      int
	MinDelta      float32
	MonitorMetric string
	ModeMax       bool
}

// Config is the full, immutable-for-the-run configuration surface of
// spec.md §6.
type Config struct {
	Epochs               int
	Seed                 int64
	Device               string
	MixedPrecision       bool
	GradientAccumulation int

	Optimizer     OptimizerConfig
	Scheduler     SchedulerConfig
	Loss          LossConfig
	Bounded       BoundedConfig
	Pruning       PruningConfig
	EarlyStopping EarlyStoppingConfig
}

func f32(v float32) *float32 { return &v }

// Default returns spec.md §6's defaults.
func Default() Config {
	return Config{
		Epochs:               100,
		Seed:                 42,
		Device:               "cpu",
		MixedPrecision:       false,
		GradientAccumulation: 1,
		Optimizer: OptimizerConfig{
			Type:         OptimizerAdamW,
			LearningRate: 1e-3,
			WeightDecay:  1e-2,
			Momentum:     0.9,
			Beta1:        0.9,
			Beta2:        0.999,
			Epsilon:      1e-8,
			Nesterov:     false,
		},
		Scheduler: SchedulerConfig{
			Type:         SchedulerCosineWarmup,
			WarmupEpochs: 5,
			MinLr:        1e-6,
			TMax:         100,
		},
		Loss: LossConfig{
			Type:           LossCrossEntropy,
			LabelSmoothing: 0.1,
			FocalGamma:     2.0,
		},
		Bounded: BoundedConfig{
			WeightConstraints: map[string]WeightConstraintConfig{},
			GradientConstraints: GradientConstraintConfig{
				ClipGradients: true,
				ClipNorm:      f32(1.0),
			},
			L1Regularization: 0,
			L2Regularization: 1e-4,
			ElasticNetRatio:  0,
		},
		Pruning: PruningConfig{
			Strategy:       PruningNone,
			TargetSparsity: 0,
			Schedule:       ScheduleGradual,
			StartEpoch:     10,
			EndEpoch:       80,
			Frequency:      5,
		},
		EarlyStopping: EarlyStoppingConfig{
			Enabled:       true,
			Patience:      10,
			MinDelta:      1e-4,
			MonitorMetric: "val_loss",
			ModeMax:       false,
		},
	}
}

// FAST is a short, no-schedule preset for quick iteration.
func FAST() Config {
	c := Default()
	c.Epochs = 20
	c.Optimizer.LearningRate = 5e-3
	c.Scheduler.Type = SchedulerConstant
	c.Scheduler.WarmupEpochs = 0
	return c
}

// PRODUCTION is a long run with mixed precision and cubic pruning to 0.5.
func PRODUCTION() Config {
	c := Default()
	c.Epochs = 200
	c.MixedPrecision = true
	c.Pruning.Strategy = PruningMagnitude
	c.Pruning.Schedule = ScheduleCubic
	c.Pruning.TargetSparsity = 0.5
	c.Pruning.StartEpoch = 20
	c.Pruning.EndEpoch = 160
	return c
}

// COMPRESSION pushes to 0.9 sparsity via lottery-ticket rewinding with
// elastic-net regularization.
func COMPRESSION() Config {
	c := Default()
	c.Epochs = 150
	c.Pruning.Strategy = PruningLotteryTicket
	c.Pruning.Schedule = ScheduleCubic
	c.Pruning.TargetSparsity = 0.9
	c.Pruning.StartEpoch = 10
	c.Pruning.EndEpoch = 120
	c.Pruning.EnableRewinding = true
	c.Bounded.L1Regularization = 0.5
	c.Bounded.L2Regularization = 0.5
	c.Bounded.ElasticNetRatio = 0.5
	return c
}

// Validate rejects unimplemented or structurally invalid enum values.
// Presets and caller-built configs are both run through this before a
// Trainer is constructed, so a mutated preset can't silently reference an
// unimplemented enum (SPEC_FULL.md §7).
func (c Config) Validate() error {
	switch c.Optimizer.Type {
	case OptimizerSGD, OptimizerAdam, OptimizerAdamW:
	default:
		return Wrapper(ErrConfig, "unimplemented optimizer type: "+string(c.Optimizer.Type))
	}
	switch c.Scheduler.Type {
	case SchedulerConstant, SchedulerStep, SchedulerExponential, SchedulerCosine,
		SchedulerCosineWarmup, SchedulerLinearWarmup, SchedulerOneCycle, SchedulerReduceOnPlateau:
	default:
		return Wrapper(ErrConfig, "unimplemented scheduler type: "+string(c.Scheduler.Type))
	}
	switch c.Loss.Type {
	case LossCrossEntropy, LossBCE, LossMSE, LossHuber, LossFocal:
	default:
		return Wrapper(ErrConfig, "unimplemented loss type: "+string(c.Loss.Type))
	}
	switch c.Pruning.Strategy {
	case PruningNone, PruningMagnitude, PruningRandom, PruningLotteryTicket, PruningMovement:
	default:
		return Wrapper(ErrConfig, "unimplemented pruning strategy: "+string(c.Pruning.Strategy))
	}
	switch c.Pruning.Schedule {
	case ScheduleOneShot, ScheduleGradual, ScheduleCubic, ScheduleExponent:
	default:
		return Wrapper(ErrConfig, "unimplemented pruning schedule: "+string(c.Pruning.Schedule))
	}
	return nil
}
