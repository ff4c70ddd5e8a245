package features

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrUnknownEntity reports a lookup for an identity the snapshot lacks.
var ErrUnknownEntity = errors.New("unknown entity")

// MemoryProvider is a snapshot-backed DataProvider. It serves fixtures in
// tests and file-seeded snapshots in the CLI. Safe for concurrent reads.
type MemoryProvider struct {
	mu      sync.RWMutex
	roles   map[string]JobRole
	skills  map[string]Skill
	trends  map[string][]MarketTrend
	signals map[string]UsageSignal
}

// NewMemoryProvider returns an empty snapshot.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		roles:   make(map[string]JobRole),
		skills:  make(map[string]Skill),
		trends:  make(map[string][]MarketTrend),
		signals: make(map[string]UsageSignal),
	}
}

// AddJobRole registers a role in the snapshot.
func (p *MemoryProvider) AddJobRole(role JobRole) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles[role.ID] = role
}

// AddSkill registers a skill in the snapshot.
func (p *MemoryProvider) AddSkill(skill Skill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skills[skill.ID] = skill
}

// AddMarketTrend appends a trend observation for its sector.
func (p *MemoryProvider) AddMarketTrend(trend MarketTrend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trends[trend.Sector] = append(p.trends[trend.Sector], trend)
}

// SetUsageSignal records organizational signals for one pair.
func (p *MemoryProvider) SetUsageSignal(jobRoleID, skillID string, signal UsageSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals[jobRoleID+"/"+skillID] = signal
}

func (p *MemoryProvider) JobRole(_ context.Context, id string) (JobRole, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	role, ok := p.roles[id]
	if !ok {
		return JobRole{}, ErrUnknownEntity
	}
	return role, nil
}

func (p *MemoryProvider) Skill(_ context.Context, id string) (Skill, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	skill, ok := p.skills[id]
	if !ok {
		return Skill{}, ErrUnknownEntity
	}
	return skill, nil
}

func (p *MemoryProvider) MarketTrends(_ context.Context, sector string) ([]MarketTrend, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	trends := p.trends[sector]
	out := make([]MarketTrend, len(trends))
	copy(out, trends)
	return out, nil
}

func (p *MemoryProvider) UsageSignal(_ context.Context, jobRoleID, skillID string) (UsageSignal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	signal, ok := p.signals[jobRoleID+"/"+skillID]
	if !ok {
		return UsageSignal{}, ErrUnknownEntity
	}
	return signal, nil
}

// Pairs enumerates every role x skill combination in deterministic order.
func (p *MemoryProvider) Pairs(_ context.Context) ([]Pair, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roleIDs := make([]string, 0, len(p.roles))
	for id := range p.roles {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)

	skillIDs := make([]string, 0, len(p.skills))
	for id := range p.skills {
		skillIDs = append(skillIDs, id)
	}
	sort.Strings(skillIDs)

	pairs := make([]Pair, 0, len(roleIDs)*len(skillIDs))
	for _, roleID := range roleIDs {
		for _, skillID := range skillIDs {
			pairs = append(pairs, Pair{JobRoleID: roleID, SkillID: skillID})
		}
	}
	return pairs, nil
}
