// Package prune implements the pruning manager and scheduler (spec.md
// §4.8): per-parameter binary masks, progressive sparsity schedules, and
// strategy-specific scoring (magnitude, random, movement, lottery-ticket
// with weight rewinding).
package prune

import (
	"math"
	"math/rand"
	"sort"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

// Manager owns, per registered parameter name, a binary mask and
// (lottery-ticket only) an initial-weights snapshot.
type Manager struct {
	cfg       config.PruningConfig
	masks     map[string]*tensor.Tensor
	snapshots map[string]*tensor.Tensor
	rng       *rand.Rand
}

// NewManager validates cfg and returns a Manager seeded from rng (threaded
// from config.Config.Seed per spec.md §9, so the random strategy is
// reproducible rather than drawing from the process-global generator).
func NewManager(cfg config.PruningConfig, rng *rand.Rand) (*Manager, error) {
	switch cfg.Strategy {
	case config.PruningNone, config.PruningMagnitude, config.PruningRandom,
		config.PruningLotteryTicket, config.PruningMovement:
	default:
		return nil, config.Wrapper(config.ErrConfig, "unimplemented pruning strategy: "+string(cfg.Strategy))
	}
	switch cfg.Schedule {
	case config.ScheduleOneShot, config.ScheduleGradual, config.ScheduleCubic, config.ScheduleExponent:
	default:
		return nil, config.Wrapper(config.ErrConfig, "unimplemented pruning schedule: "+string(cfg.Schedule))
	}
	return &Manager{
		cfg:       cfg,
		masks:     map[string]*tensor.Tensor{},
		snapshots: map[string]*tensor.Tensor{},
		rng:       rng,
	}, nil
}

// Register creates an all-ones mask for name (and, when the configured
// strategy is lottery_ticket, a snapshot of t's current data) before
// training begins.
func (m *Manager) Register(name string, t *tensor.Tensor) {
	if _, ok := m.masks[name]; ok {
		return
	}
	mask := tensor.Zeros(t.Shape...)
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	m.masks[name] = mask
	if m.cfg.Strategy == config.PruningLotteryTicket {
		m.snapshots[name] = t.Clone()
	}
}

// ensureRegistered lazily registers a name Prune is called on before
// Register, matching the source behavior spec.md §7 (StateError) calls
// out as the documented fallback rather than a hard failure.
func (m *Manager) ensureRegistered(name string, t *tensor.Tensor) {
	if _, ok := m.masks[name]; !ok {
		m.Register(name, t)
	}
}

// TargetSparsity returns the scheduled target sparsity at epoch, per
// spec.md §4.8's four curve shapes.
func (m *Manager) TargetSparsity(epoch int) float32 {
	start, end, target := m.cfg.StartEpoch, m.cfg.EndEpoch, m.cfg.TargetSparsity
	if epoch < start {
		return 0
	}
	if epoch >= end {
		return target
	}
	p := float32(epoch-start) / float32(end-start)

	switch m.cfg.Schedule {
	case config.ScheduleOneShot:
		return target
	case config.ScheduleGradual:
		return target * p
	case config.ScheduleCubic:
		return target * (1 - float32(math.Pow(float64(1-p), 3)))
	case config.ScheduleExponent:
		return target * (1 - float32(math.Exp(-3*float64(p))))
	default:
		return target * p
	}
}

// ShouldPrune reports whether epoch is a scheduled pruning step.
func (m *Manager) ShouldPrune(epoch int) bool {
	if m.cfg.Strategy == config.PruningNone {
		return false
	}
	if epoch < m.cfg.StartEpoch || epoch > m.cfg.EndEpoch {
		return false
	}
	freq := m.cfg.Frequency
	if freq <= 0 {
		freq = 1
	}
	return (epoch-m.cfg.StartEpoch)%freq == 0
}

// Prune applies the configured strategy to t, updating its mask
// monotonically (never un-pruning a position) and zeroing t.Data at every
// masked-off position.
//
// Movement scoring uses whatever gradient is present on t at call time;
// engine.Trainer calls Prune after the epoch's last optimizer step, so the
// gradient reflects the most recent mini-batch (spec.md §9 open question,
// resolved in that direction).
func (m *Manager) Prune(name string, t *tensor.Tensor, epoch int) error {
	m.ensureRegistered(name, t)
	mask := m.masks[name]

	sEff := m.TargetSparsity(epoch)
	if s, ok := m.cfg.LayerSparsity[name]; ok {
		sEff = s
	}

	n := len(t.Data)
	targetNnz := int(math.Round(float64(n) * float64(1-sEff)))

	active := activeIndices(mask)
	currentNnz := len(active)
	deficit := currentNnz - targetNnz
	if deficit <= 0 {
		return nil
	}

	switch m.cfg.Strategy {
	case config.PruningNone:
		return nil
	case config.PruningMagnitude:
		m.pruneMagnitude(t, mask, active, deficit)
	case config.PruningRandom:
		m.pruneRandom(mask, active, deficit)
	case config.PruningMovement:
		if t.Grad == nil {
			m.pruneMagnitude(t, mask, active, deficit)
		} else {
			m.pruneMovement(t, mask, active, deficit)
		}
	case config.PruningLotteryTicket:
		m.pruneMagnitude(t, mask, active, deficit)
		if m.cfg.EnableRewinding {
			if snap, ok := m.snapshots[name]; ok {
				for i, mv := range mask.Data {
					if mv == 1 {
						t.Data[i] = snap.Data[i]
					}
				}
			}
		}
	default:
		return config.Wrapper(config.ErrConfig, "unimplemented pruning strategy: "+string(m.cfg.Strategy))
	}

	applyMask(t, mask)
	return nil
}

func activeIndices(mask *tensor.Tensor) []int {
	idx := make([]int, 0, len(mask.Data))
	for i, v := range mask.Data {
		if v == 1 {
			idx = append(idx, i)
		}
	}
	return idx
}

// applyMask zeroes every masked-off position (P2).
func applyMask(t *tensor.Tensor, mask *tensor.Tensor) {
	for i, mv := range mask.Data {
		t.Data[i] *= mv
	}
}

func (m *Manager) pruneMagnitude(t *tensor.Tensor, mask *tensor.Tensor, active []int, deficit int) {
	sort.Slice(active, func(i, j int) bool {
		return absf(t.Data[active[i]]) < absf(t.Data[active[j]])
	})
	for i := 0; i < deficit && i < len(active); i++ {
		mask.Data[active[i]] = 0
	}
}

func (m *Manager) pruneMovement(t *tensor.Tensor, mask *tensor.Tensor, active []int, deficit int) {
	sort.Slice(active, func(i, j int) bool {
		return score(t, active[i]) < score(t, active[j])
	})
	for i := 0; i < deficit && i < len(active); i++ {
		mask.Data[active[i]] = 0
	}
}

func score(t *tensor.Tensor, i int) float32 {
	return -t.Data[i] * t.Grad[i]
}

// pruneRandom zeros exactly `deficit` of the active positions, chosen by
// shuffling the active index set and taking a prefix -- an exact count,
// unlike the teacher-language's Bernoulli scan that spec.md §9 flags as
// inexact.
func (m *Manager) pruneRandom(mask *tensor.Tensor, active []int, deficit int) {
	m.rng.Shuffle(len(active), func(i, j int) {
		active[i], active[j] = active[j], active[i]
	})
	for i := 0; i < deficit && i < len(active); i++ {
		mask.Data[active[i]] = 0
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Stat is the sparsity/nnz/total report for one registered parameter.
type Stat struct {
	Name     string
	Sparsity float32
	NNZ      int
	Total    int
}

// Report is per-name stats plus the N-weighted aggregate sparsity.
type Report struct {
	PerName   []Stat
	Aggregate float32
}

// Stats reports sparsity for every registered parameter.
func (m *Manager) Stats() Report {
	var report Report
	var totalN, totalZero int
	for name, mask := range m.masks {
		nnz := 0
		for _, v := range mask.Data {
			if v == 1 {
				nnz++
			}
		}
		total := len(mask.Data)
		report.PerName = append(report.PerName, Stat{
			Name:     name,
			Sparsity: 1 - float32(nnz)/float32(total),
			NNZ:      nnz,
			Total:    total,
		})
		totalN += total
		totalZero += total - nnz
	}
	sort.Slice(report.PerName, func(i, j int) bool { return report.PerName[i].Name < report.PerName[j].Name })
	if totalN > 0 {
		report.Aggregate = float32(totalZero) / float32(totalN)
	}
	return report
}
