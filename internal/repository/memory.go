package repository

import (
	"fmt"
	"sync"
	"time"

	"starchart/internal/models"
)

// MemoryRepository holds all household state in memory. It backs offline mode and tests.
type MemoryRepository struct {
	mu sync.Mutex

	children  []models.Child
	types     []models.BehaviorType
	events    []models.BehaviorEvent
	streaks   []models.BehaviorStreak
	rewards   []models.Reward
	history   []models.RewardHistoryEvent
	versions  []models.AgreementVersion
	badges    []models.SkillBadge
	moments   []models.SpecialMoment
	now       func() time.Time
	loc       *time.Location
	failReads error
}

// NewMemory creates an empty MemoryRepository
func NewMemory() *MemoryRepository {
	return &MemoryRepository{now: time.Now, loc: time.Local}
}

// SetClock overrides the clock used for streak computation
func (m *MemoryRepository) SetClock(now func() time.Time, loc *time.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.loc = loc
}

// FailReads makes every collection read return err until called with nil
func (m *MemoryRepository) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = err
}

// Reset clears all state
func (m *MemoryRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children, m.types, m.events, m.streaks = nil, nil, nil, nil
	m.rewards, m.history, m.versions, m.badges, m.moments = nil, nil, nil, nil, nil
}

func read[T any](m *MemoryRepository, items *[]T) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	out := make([]T, len(*items))
	copy(out, *items)
	return out, nil
}

// upsert replaces the item with a matching id, or appends when add is set
func upsert[T any](items []T, item T, id func(T) string, add bool) ([]T, error) {
	for i := range items {
		if id(items[i]) == id(item) {
			if add {
				return items, fmt.Errorf("duplicate id %s", id(item))
			}
			items[i] = item
			return items, nil
		}
	}
	if !add {
		return items, fmt.Errorf("record %s not found", id(item))
	}
	return append(items, item), nil
}

func remove[T any](items []T, key string, id func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if id(item) != key {
			out = append(out, item)
		}
	}
	return out
}

func childKey(c models.Child) string                { return c.ID }
func behaviorTypeKey(bt models.BehaviorType) string { return bt.ID }
func eventKey(e models.BehaviorEvent) string        { return e.ID }
func rewardKey(r models.Reward) string              { return r.ID }
func versionKey(v models.AgreementVersion) string   { return v.ID }
func momentKey(sm models.SpecialMoment) string      { return sm.ID }

func (m *MemoryRepository) Children() ([]models.Child, error) { return read(m, &m.children) }

func (m *MemoryRepository) AddChild(child models.Child) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children, err = upsert(m.children, child, childKey, true)
	return err
}

func (m *MemoryRepository) UpdateChild(child models.Child) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children, err = upsert(m.children, child, childKey, false)
	return err
}

func (m *MemoryRepository) DeleteChild(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children = remove(m.children, id, childKey)
	return nil
}

func (m *MemoryRepository) BehaviorTypes() ([]models.BehaviorType, error) { return read(m, &m.types) }

func (m *MemoryRepository) AddBehaviorType(bt models.BehaviorType) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types, err = upsert(m.types, bt, behaviorTypeKey, true)
	return err
}

func (m *MemoryRepository) UpdateBehaviorType(bt models.BehaviorType) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types, err = upsert(m.types, bt, behaviorTypeKey, false)
	return err
}

func (m *MemoryRepository) DeleteBehaviorType(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = remove(m.types, id, behaviorTypeKey)
	return nil
}

func (m *MemoryRepository) BehaviorEvents() ([]models.BehaviorEvent, error) { return read(m, &m.events) }

func (m *MemoryRepository) AddBehaviorEvent(event models.BehaviorEvent) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events, err = upsert(m.events, event, eventKey, true)
	return err
}

func (m *MemoryRepository) UpdateBehaviorEvent(event models.BehaviorEvent) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events, err = upsert(m.events, event, eventKey, false)
	return err
}

func (m *MemoryRepository) DeleteBehaviorEvent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = remove(m.events, id, eventKey)
	return nil
}

func (m *MemoryRepository) BehaviorStreaks() ([]models.BehaviorStreak, error) {
	return read(m, &m.streaks)
}

func (m *MemoryRepository) UpdateStreak(childID, behaviorTypeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.streaks {
		if s.ChildID == childID && s.BehaviorTypeID == behaviorTypeID {
			m.streaks[i] = computeStreak(m.events, s, m.now(), m.loc)
			return nil
		}
	}
	existing := models.BehaviorStreak{ID: models.NewID(), ChildID: childID, BehaviorTypeID: behaviorTypeID}
	m.streaks = append(m.streaks, computeStreak(m.events, existing, m.now(), m.loc))
	return nil
}

func (m *MemoryRepository) Rewards() ([]models.Reward, error) { return read(m, &m.rewards) }

func (m *MemoryRepository) AddReward(reward models.Reward) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards, err = upsert(m.rewards, reward, rewardKey, true)
	return err
}

func (m *MemoryRepository) UpdateReward(reward models.Reward) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards, err = upsert(m.rewards, reward, rewardKey, false)
	return err
}

// UpdateRewards applies every update or none
func (m *MemoryRepository) UpdateRewards(rewards []models.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]models.Reward, len(m.rewards))
	copy(next, m.rewards)
	for _, reward := range rewards {
		var err error
		if next, err = upsert(next, reward, rewardKey, false); err != nil {
			return err
		}
	}
	m.rewards = next
	return nil
}

func (m *MemoryRepository) DeleteReward(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards = remove(m.rewards, id, rewardKey)
	return nil
}

func (m *MemoryRepository) RewardHistoryEvents() ([]models.RewardHistoryEvent, error) {
	return read(m, &m.history)
}

func (m *MemoryRepository) AddRewardHistoryEvent(event models.RewardHistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, event)
	return nil
}

func (m *MemoryRepository) AgreementVersions() ([]models.AgreementVersion, error) {
	return read(m, &m.versions)
}

func (m *MemoryRepository) AddAgreementVersion(version models.AgreementVersion) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions, err = upsert(m.versions, version, versionKey, true)
	return err
}

func (m *MemoryRepository) UpdateAgreementVersion(version models.AgreementVersion) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions, err = upsert(m.versions, version, versionKey, false)
	return err
}

func (m *MemoryRepository) SkillBadges() ([]models.SkillBadge, error) { return read(m, &m.badges) }

func (m *MemoryRepository) AddSkillBadge(badge models.SkillBadge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges = append(m.badges, badge)
	return nil
}

func (m *MemoryRepository) SpecialMoments() ([]models.SpecialMoment, error) {
	return read(m, &m.moments)
}

func (m *MemoryRepository) AddSpecialMoment(moment models.SpecialMoment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.moments {
		if existing.EventID == moment.EventID {
			return fmt.Errorf("event %s already has a special moment", moment.EventID)
		}
	}
	m.moments = append(m.moments, moment)
	return nil
}

func (m *MemoryRepository) UpdateSpecialMoment(moment models.SpecialMoment) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moments, err = upsert(m.moments, moment, momentKey, false)
	return err
}

func (m *MemoryRepository) DeleteSpecialMoment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moments = remove(m.moments, id, momentKey)
	return nil
}
