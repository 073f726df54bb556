package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func cfg() models.SessionConfig {
	return models.SessionConfig{Interval: time.Second, TrackedSignals: models.AllSignals}
}

func TestStore_CreateRejectsDuplicatePair(t *testing.T) {
	st := NewStore()

	s1, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, s1.Snapshot().Status)

	_, err = st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.True(t, errors.Is(err, models.ErrAlreadyActive))

	// other owner or other shipment is fine
	_, err = st.Create("SC-9", "u2", cfg(), models.SignalState{})
	require.NoError(t, err)
	_, err = st.Create("SC-10", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	require.Equal(t, 3, st.Count())
}

func TestStore_CreateConcurrentSamePair(t *testing.T) {
	st := NewStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, dup := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, models.ErrAlreadyActive) {
				dup++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, ok)
	require.Equal(t, 49, dup)
}

func TestStore_RemoveFreesPair(t *testing.T) {
	st := NewStore()
	s, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)

	removed, ok := st.Remove(s.ID(), models.SessionStatusStopped)
	require.True(t, ok)
	require.Equal(t, models.SessionStatusStopped, removed.Snapshot().Status)

	_, ok = st.Remove(s.ID(), models.SessionStatusStopped)
	require.False(t, ok)
	_, ok = st.Get(s.ID())
	require.False(t, ok)

	s2, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	require.NotEqual(t, s.ID(), s2.ID())
}

func TestSession_AdvanceIsStrictlyMonotonic(t *testing.T) {
	st := NewStore()
	s, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)

	start := s.Snapshot().LastUpdateAt
	past := start.Add(-time.Hour)

	a1 := s.Advance(past, nil, nil)
	require.True(t, a1.After(start))

	a2 := s.Advance(a1, nil, nil)
	require.True(t, a2.After(a1))

	future := a2.Add(time.Minute)
	a3 := s.Advance(future, nil, nil)
	require.Equal(t, future, a3)
	require.Equal(t, int64(3), s.Snapshot().TickCount)
}

func TestSession_AdvanceFoldsStateAndAlerts(t *testing.T) {
	st := NewStore()
	s, err := st.Create("SC-9", "u1", cfg(), models.SignalState{Quality: models.Quality{Score: 90, Grade: "Grade A"}})
	require.NoError(t, err)

	now := time.Now().UTC()
	s.Advance(now, []models.SignalSample{{
		Type:        models.SignalEnvironment,
		Environment: &models.Environment{TemperatureC: 40, HumidityPct: 50},
		Timestamp:   now,
	}}, []*models.AlertRecord{{ID: "a1"}, {ID: "a2"}})

	v := s.View()
	require.Equal(t, 40.0, v.State.Environment.TemperatureC)
	require.Equal(t, 90.0, v.State.Quality.Score)
	require.Len(t, v.RecentAlerts, 2)
	require.Equal(t, "a2", v.RecentAlerts[0].ID)

	for i := 0; i < recentAlertsCap+5; i++ {
		s.Advance(now, nil, []*models.AlertRecord{{ID: "x"}})
	}
	require.Len(t, s.View().RecentAlerts, recentAlertsCap)
}

func TestSession_ResolveAlert(t *testing.T) {
	st := NewStore()
	s, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	s.Advance(time.Now(), nil, []*models.AlertRecord{{ID: "a1"}})

	a, err := s.ResolveAlert("a1", "inspector", time.Now())
	require.NoError(t, err)
	require.True(t, a.Resolved)

	_, err = s.ResolveAlert("a1", "inspector", time.Now())
	require.True(t, errors.Is(err, models.ErrAlreadyResolved))

	_, err = s.ResolveAlert("nope", "inspector", time.Now())
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestStore_Stale(t *testing.T) {
	st := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }

	old, err := st.Create("S1", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	fresh, err := st.Create("S2", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)
	fresh.Advance(base.Add(50*time.Minute), nil, nil)

	stale := st.Stale(base.Add(61*time.Minute), time.Hour)
	require.Len(t, stale, 1)
	require.Equal(t, old.ID(), stale[0].ID())
	require.Len(t, st.ByShipment("S2"), 1)
}

func TestSession_EmitSeesRemoval(t *testing.T) {
	st := NewStore()
	s, err := st.Create("SC-9", "u1", cfg(), models.SignalState{})
	require.NoError(t, err)

	var seen []bool
	s.Emit(func(active bool) { seen = append(seen, active) })
	_, ok := st.Remove(s.ID(), models.SessionStatusStopped)
	require.True(t, ok)
	s.Emit(func(active bool) { seen = append(seen, active) })

	require.Equal(t, []bool{true, false}, seen)
	require.False(t, s.Active())
}
