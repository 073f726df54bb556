package sessions

import (
	"sync"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const recentAlertsCap = 50

// Session is one live-tracked shipment. All mutation goes through its own
// mutex, so ticks of different sessions never contend.
type Session struct {
	cycle  sync.Mutex
	events sync.Mutex
	mu     sync.Mutex
	data   models.TrackingSession
	state  models.SignalState
	alerts []*models.AlertRecord // newest first
}

func (s *Session) ID() string { return s.data.ID }

func (s *Session) ShipmentID() string { return s.data.ShipmentID }

func (s *Session) OwnerUserID() string { return s.data.OwnerUserID }

func (s *Session) Interval() time.Duration { return s.data.Interval }

func (s *Session) Snapshot() models.TrackingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.data
	out.TrackedSignals = append([]models.SignalType(nil), s.data.TrackedSignals...)
	return out
}

func (s *Session) State() models.SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is the getSessionStatus read model.
func (s *Session) View() models.SessionStatusView {
	snap := s.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	alerts := make([]*models.AlertRecord, 0, len(s.alerts))
	for _, a := range s.alerts {
		cp := *a
		alerts = append(alerts, &cp)
	}
	return models.SessionStatusView{
		TrackingSession: snap,
		IntervalSeconds: snap.Interval.Seconds(),
		State:           s.state,
		RecentAlerts:    alerts,
	}
}

// Advance folds a cycle's samples into the state and moves lastUpdateAt
// strictly forward, even when the clock did not.
func (s *Session) Advance(at time.Time, samples []models.SignalSample, alerts []*models.AlertRecord) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, smp := range samples {
		s.state = s.state.Apply(smp)
	}
	at = at.UTC()
	if !at.After(s.data.LastUpdateAt) {
		at = s.data.LastUpdateAt.Add(time.Nanosecond)
	}
	s.data.LastUpdateAt = at
	s.data.TickCount++

	for _, a := range alerts {
		cp := *a
		s.alerts = append([]*models.AlertRecord{&cp}, s.alerts...)
	}
	if len(s.alerts) > recentAlertsCap {
		s.alerts = s.alerts[:recentAlertsCap]
	}
	return at
}

// ResolveAlert resolves one of the session's recent alerts.
func (s *Session) ResolveAlert(alertID, by string, at time.Time) (*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID != alertID {
			continue
		}
		if err := a.Resolve(by, at); err != nil {
			return nil, err
		}
		cp := *a
		return &cp, nil
	}
	return nil, errors.Wrapf(models.ErrNotFound, "alert %s", alertID)
}

// BeginCycle serializes update cycles of this session, whichever path
// (scheduler or ingestion) starts them. Call the returned func when done.
func (s *Session) BeginCycle() func() {
	s.cycle.Lock()
	return s.cycle.Unlock
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Status == models.SessionStatusActive
}

// Emit runs fn with the session's events serialized. fn is told whether the
// session is still active, so nothing goes out after its final event.
func (s *Session) Emit(fn func(active bool)) {
	s.events.Lock()
	defer s.events.Unlock()
	fn(s.Active())
}

func (s *Session) setStatus(st models.SessionStatus) {
	s.mu.Lock()
	s.data.Status = st
	s.mu.Unlock()
}

type pairKey struct {
	shipmentID string
	ownerID    string
}

// Store holds the active sessions. The map lock only guards membership;
// per-session state has its own lock.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byPair map[pairKey]string
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		byID:   map[string]*Session{},
		byPair: map[pairKey]string{},
		now:    time.Now,
	}
}

// Create fails with ErrAlreadyActive when the (shipment, owner) pair
// already has an active session.
func (st *Store) Create(shipmentID, ownerID string, cfg models.SessionConfig, seed models.SignalState) (*Session, error) {
	key := pairKey{shipmentID: shipmentID, ownerID: ownerID}
	now := st.now().UTC()

	st.mu.Lock()
	defer st.mu.Unlock()

	if id, ok := st.byPair[key]; ok {
		return nil, errors.Wrapf(models.ErrAlreadyActive, "shipment %s owner %s session %s", shipmentID, ownerID, id)
	}

	s := &Session{
		data: models.TrackingSession{
			ID:             uuid.NewString(),
			ShipmentID:     shipmentID,
			OwnerUserID:    ownerID,
			StartedAt:      now,
			LastUpdateAt:   now,
			Status:         models.SessionStatusActive,
			Interval:       cfg.Interval,
			TrackedSignals: append([]models.SignalType(nil), cfg.TrackedSignals...),
		},
		state: seed,
	}
	st.byID[s.data.ID] = s
	st.byPair[key] = s.data.ID
	return s, nil
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	return s, ok
}

// Remove takes the session out of the store with its final status. The
// second return is false when the id was not present.
func (st *Store) Remove(id string, final models.SessionStatus) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.byID[id]
	if ok {
		delete(st.byID, id)
		delete(st.byPair, pairKey{shipmentID: s.data.ShipmentID, ownerID: s.data.OwnerUserID})
	}
	st.mu.Unlock()

	if !ok {
		return nil, false
	}
	s.setStatus(final)
	return s, true
}

func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.byID))
	for _, s := range st.byID {
		out = append(out, s)
	}
	return out
}

func (st *Store) ByShipment(shipmentID string) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*Session
	for _, s := range st.byID {
		if s.data.ShipmentID == shipmentID {
			out = append(out, s)
		}
	}
	return out
}

// Stale returns sessions whose last successful cycle is older than window.
func (st *Store) Stale(now time.Time, window time.Duration) []*Session {
	var out []*Session
	for _, s := range st.List() {
		if now.Sub(s.Snapshot().LastUpdateAt) > window {
			out = append(out, s)
		}
	}
	return out
}

func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
