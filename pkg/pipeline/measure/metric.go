package measure

import (
	"sync"
	"time"

	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
)

type phaseInfo struct {
	Elapsed time.Duration
	total   int
}

type DefaultMetric struct {
	mu     *sync.Mutex
	phases map[model.Phase]*phaseInfo
}

func newDefaultMetric() *DefaultMetric {
	return &DefaultMetric{
		mu:     &sync.Mutex{},
		phases: make(map[model.Phase]*phaseInfo),
	}
}

func (mt *DefaultMetric) AddDuration(phase model.Phase, elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.phases[phase] == nil {
		mt.phases[phase] = &phaseInfo{}
	}
	info := mt.phases[phase]
	info.Elapsed += elapsed
	info.total++
}

func (mt *DefaultMetric) Duration(phase model.Phase) time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if info, ok := mt.phases[phase]; ok {
		return round(info.Elapsed)
	}

	return 0
}

func (mt *DefaultMetric) Calls(phase model.Phase) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if info, ok := mt.phases[phase]; ok {
		return info.total
	}

	return 0
}

func (mt *DefaultMetric) TotalDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var total time.Duration
	for _, info := range mt.phases {
		total += info.Elapsed
	}

	return round(total)
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Second:
		d = d.Round(time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Microsecond)
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)
