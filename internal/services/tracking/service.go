package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/LiveTrace/internal/broker/messages"
	"github.com/BearBump/LiveTrace/internal/metrics"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/BearBump/LiveTrace/internal/services/alerts"
	"github.com/BearBump/LiveTrace/internal/services/broadcast"
	"github.com/BearBump/LiveTrace/internal/services/generator"
	"github.com/BearBump/LiveTrace/internal/services/scheduler"
	"github.com/BearBump/LiveTrace/internal/services/sessions"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ShipmentRepository interface {
	GetShipment(ctx context.Context, id string) (models.ShipmentSnapshot, error)
	AppendAlert(ctx context.Context, shipmentID string, a *models.AlertRecord) error
	UpdateLocation(ctx context.Context, shipmentID string, loc models.Location) error
}

type SampleSource interface {
	NextSample(ctx context.Context, st models.SignalState, t models.SignalType) (models.SignalSample, error)
}

type AlertEvaluator interface {
	Evaluate(s models.SignalSample) []*models.AlertRecord
}

type Notifier interface {
	Notify(ctx context.Context, recipientID string, n *models.Notification) (*models.Notification, error)
	Sweep(ctx context.Context) (int, error)
}

// LedgerPublisher is the Kafka producer of the ledger feed.
type LedgerPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Pinger is a dependency whose reachability shows up in system health.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

type Config struct {
	DefaultInterval      time.Duration
	MinInterval          time.Duration
	StaleAfter           time.Duration
	HousekeepingInterval time.Duration
	HealthInterval       time.Duration
	UpstreamTimeout      time.Duration
	ShutdownGrace        time.Duration

	RegulatoryRole  string
	PrivilegedRoles []string

	StartLimit  int64
	StartWindow time.Duration

	LedgerTopic string
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval:      30 * time.Second,
		MinInterval:          5 * time.Second,
		StaleAfter:           time.Hour,
		HousekeepingInterval: time.Hour,
		HealthInterval:       30 * time.Second,
		UpstreamTimeout:      5 * time.Second,
		ShutdownGrace:        5 * time.Second,
		RegulatoryRole:       "regulator",
		PrivilegedRoles:      []string{"admin", "regulator"},
		StartLimit:           10,
		StartWindow:          time.Minute,
		LedgerTopic:          "tracking.events",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = def.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = def.HousekeepingInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = def.HealthInterval
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = def.UpstreamTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	if c.RegulatoryRole == "" {
		c.RegulatoryRole = def.RegulatoryRole
	}
	if len(c.PrivilegedRoles) == 0 {
		c.PrivilegedRoles = []string{"admin", c.RegulatoryRole}
	}
	if c.StartLimit <= 0 {
		c.StartLimit = def.StartLimit
	}
	if c.StartWindow <= 0 {
		c.StartWindow = def.StartWindow
	}
	if c.LedgerTopic == "" {
		c.LedgerTopic = def.LedgerTopic
	}
	return c
}

// Deps are the collaborators of the engine. Ledger, Limiter, Pingers and
// HealthSink are optional.
type Deps struct {
	Sessions   *sessions.Store
	Scheduler  *scheduler.Scheduler
	Generator  SampleSource
	Evaluator  AlertEvaluator
	Dispatcher *broadcast.Dispatcher
	Notifier   Notifier
	Shipments  ShipmentRepository

	Ledger     LedgerPublisher
	Limiter    RateLimiter
	Pingers    []Pinger
	HealthSink func(models.SystemHealth)

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

const (
	housekeepingTask = "housekeeping"
	healthTask       = "health"
)

func sessionTask(id string) string { return "session:" + id }

type Service struct {
	cfg Config
	Deps

	now       func() time.Time
	startedAt time.Time
}

func New(cfg Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = sessions.NewStore()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(deps.Logger)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = alerts.NewEvaluator()
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Service{
		cfg:       cfg.withDefaults(),
		Deps:      deps,
		now:       now,
		startedAt: now(),
	}
}

func (s *Service) Config() Config { return s.cfg }

// Start schedules the global housekeeping and health tasks.
func (s *Service) Start() error {
	if err := s.Scheduler.Schedule(housekeepingTask, s.cfg.HousekeepingInterval, s.Housekeeping); err != nil {
		return errors.Wrap(err, "schedule housekeeping")
	}
	if err := s.Scheduler.Schedule(healthTask, s.cfg.HealthInterval, s.healthTick); err != nil {
		return errors.Wrap(err, "schedule health")
	}
	return nil
}

// Privileged reports whether role may act on any session and broadcast.
func (s *Service) Privileged(role string) bool {
	for _, r := range s.cfg.PrivilegedRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Service) canManage(actor models.Actor, sess *sessions.Session) bool {
	return actor.UserID == sess.OwnerUserID() || s.Privileged(actor.Role)
}

// CanWatchShipment reports whether actor may follow the shipment channel:
// privileged roles always, others only while they own a session on it.
func (s *Service) CanWatchShipment(actor models.Actor, shipmentID string) bool {
	if s.Privileged(actor.Role) {
		return true
	}
	for _, sess := range s.Sessions.ByShipment(shipmentID) {
		if sess.OwnerUserID() == actor.UserID {
			return true
		}
	}
	return false
}

func (s *Service) normalize(cfg models.SessionConfig) (models.SessionConfig, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = s.cfg.DefaultInterval
	}
	if cfg.Interval < s.cfg.MinInterval {
		cfg.Interval = s.cfg.MinInterval
	}
	if len(cfg.TrackedSignals) == 0 {
		cfg.TrackedSignals = models.AllSignals
	}
	seen := map[models.SignalType]bool{}
	signals := make([]models.SignalType, 0, len(cfg.TrackedSignals))
	for _, t := range cfg.TrackedSignals {
		if !t.Valid() {
			return cfg, errors.Wrapf(models.ErrInvalidArgument, "unknown signal type %q", t)
		}
		if !seen[t] {
			seen[t] = true
			signals = append(signals, t)
		}
	}
	cfg.TrackedSignals = signals
	return cfg, nil
}

// StartSession begins live tracking of shipmentID for actor.
func (s *Service) StartSession(ctx context.Context, actor models.Actor, shipmentID string, cfg models.SessionConfig) (models.TrackingSession, error) {
	if shipmentID == "" || actor.UserID == "" {
		return models.TrackingSession{}, errors.Wrap(models.ErrInvalidArgument, "shipment id and owner id are required")
	}
	cfg, err := s.normalize(cfg)
	if err != nil {
		return models.TrackingSession{}, err
	}

	if s.Limiter != nil {
		ok, n, err := s.Limiter.Allow(ctx, "start:"+actor.UserID, s.cfg.StartLimit, s.cfg.StartWindow)
		switch {
		case err != nil:
			s.Logger.Warn("start rate limiter unavailable", zap.String("user_id", actor.UserID), zap.Error(err))
		case !ok:
			return models.TrackingSession{}, errors.Wrapf(models.ErrRateLimited, "%d session starts in window", n)
		}
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	snap, err := s.Shipments.GetShipment(gctx, shipmentID)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.TrackingSession{}, errors.Wrapf(models.ErrUpstreamTimeout, "get shipment %s", shipmentID)
		}
		return models.TrackingSession{}, errors.Wrapf(err, "get shipment %s", shipmentID)
	}

	sess, err := s.Sessions.Create(shipmentID, actor.UserID, cfg, snap.State())
	if err != nil {
		return models.TrackingSession{}, err
	}

	if err := s.Scheduler.Schedule(sessionTask(sess.ID()), sess.Interval(), func(ctx context.Context) error {
		return s.tick(ctx, sess)
	}); err != nil {
		s.Sessions.Remove(sess.ID(), models.SessionStatusStopped)
		return models.TrackingSession{}, errors.Wrap(err, "schedule session")
	}

	s.Metrics.RecordSessionStarted()
	s.Metrics.SetSessionsActive(s.Sessions.Count())
	s.Logger.Info("tracking session started",
		zap.String("session_id", sess.ID()),
		zap.String("shipment_id", shipmentID),
		zap.String("user_id", actor.UserID),
		zap.Duration("interval", cfg.Interval),
	)

	view := sess.View()
	s.emit(ctx, sess, models.EventTrackingStarted, view)
	return view.TrackingSession, nil
}

// StopSession is idempotent: an unknown id is a success.
func (s *Service) StopSession(ctx context.Context, actor models.Actor, id string) error {
	sess, ok := s.Sessions.Get(id)
	if !ok {
		return nil
	}
	if !s.canManage(actor, sess) {
		return errors.Wrapf(models.ErrForbidden, "session %s", id)
	}
	s.end(ctx, id, models.SessionStatusStopped)
	return nil
}

// end removes the session and cancels its future cycles. A cycle already
// running is left to finish but emits nothing after the final event.
func (s *Service) end(ctx context.Context, id string, status models.SessionStatus) {
	sess, ok := s.Sessions.Remove(id, status)
	if !ok {
		return
	}
	s.Scheduler.Cancel(sessionTask(id))
	s.Metrics.RecordSessionEnded(string(status))
	s.Metrics.SetSessionsActive(s.Sessions.Count())

	event := models.EventTrackingStopped
	if status == models.SessionStatusExpired {
		event = models.EventTrackingExpired
	}
	s.Logger.Info("tracking session ended",
		zap.String("session_id", id),
		zap.String("shipment_id", sess.ShipmentID()),
		zap.String("status", string(status)),
	)
	sess.Emit(func(bool) {
		s.emit(ctx, sess, event, sess.Snapshot())
	})
}

func (s *Service) GetSessionStatus(actor models.Actor, id string) (models.SessionStatusView, error) {
	sess, ok := s.Sessions.Get(id)
	if !ok {
		return models.SessionStatusView{}, errors.Wrapf(models.ErrNotFound, "session %s", id)
	}
	if !s.canManage(actor, sess) {
		return models.SessionStatusView{}, errors.Wrapf(models.ErrForbidden, "session %s", id)
	}
	return sess.View(), nil
}

// Trigger forces an immediate cycle of the session.
func (s *Service) Trigger(actor models.Actor, id string) error {
	sess, ok := s.Sessions.Get(id)
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "session %s", id)
	}
	if !s.canManage(actor, sess) {
		return errors.Wrapf(models.ErrForbidden, "session %s", id)
	}
	if !s.Scheduler.Trigger(sessionTask(id)) {
		return errors.Wrapf(models.ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *Service) ResolveAlert(ctx context.Context, actor models.Actor, sessionID, alertID string) (*models.AlertRecord, error) {
	sess, ok := s.Sessions.Get(sessionID)
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "session %s", sessionID)
	}
	if !s.canManage(actor, sess) {
		return nil, errors.Wrapf(models.ErrForbidden, "session %s", sessionID)
	}
	a, err := sess.ResolveAlert(alertID, actor.UserID, s.now())
	if err != nil {
		return nil, err
	}
	s.emit(ctx, sess, models.EventTrackingAlertResolved, a)
	return a, nil
}

// Ingest pushes an externally produced sample through the cycle of every
// active session of the shipment.
func (s *Service) Ingest(ctx context.Context, shipmentID string, sample models.SignalSample) (int, error) {
	if shipmentID == "" {
		return 0, errors.Wrap(models.ErrInvalidArgument, "shipment id is required")
	}
	if err := sample.Validate(); err != nil {
		return 0, errors.Wrap(models.ErrInvalidArgument, err.Error())
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}
	if sample.Quality != nil {
		q := *sample.Quality
		q.Grade = generator.Grade(q.Score)
		sample.Quality = &q
	}
	active := s.Sessions.ByShipment(shipmentID)
	if len(active) == 0 {
		return 0, errors.Wrapf(models.ErrNotFound, "no active session for shipment %s", shipmentID)
	}

	var firstErr error
	for _, sess := range active {
		if err := s.runCycle(ctx, sess, []models.SignalSample{sample}, models.UpdateSourceIngested); err != nil {
			s.Logger.Error("ingest cycle failed", zap.String("session_id", sess.ID()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return len(active), firstErr
}

func (s *Service) tick(ctx context.Context, sess *sessions.Session) error {
	if _, ok := s.Sessions.Get(sess.ID()); !ok {
		return nil
	}
	st := sess.State()
	tracked := sess.Snapshot().TrackedSignals
	samples := make([]models.SignalSample, 0, len(tracked))
	for _, t := range tracked {
		gctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		smp, err := s.Generator.NextSample(gctx, st, t)
		cancel()
		if err != nil {
			s.Logger.Warn("sample generation failed, keeping last value",
				zap.String("session_id", sess.ID()),
				zap.String("signal", string(t)),
				zap.Error(errors.Wrap(models.ErrUpstreamTimeout, err.Error())),
			)
			smp = st.Sample(t, s.now())
		}
		samples = append(samples, smp)
	}
	err := s.runCycle(ctx, sess, samples, models.UpdateSourceScheduled)
	if err != nil {
		return errors.Wrapf(err, "session %s", sess.ID())
	}
	return nil
}

// runCycle evaluates, persists, notifies and broadcasts one update.
func (s *Service) runCycle(ctx context.Context, sess *sessions.Session, samples []models.SignalSample, source string) (err error) {
	end := sess.BeginCycle()
	defer end()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(models.ErrInternal, fmt.Sprintf("panic: %v", r))
		}
		s.Metrics.RecordTick(time.Since(started).Seconds(), err != nil)
	}()

	var raised []*models.AlertRecord
	for _, smp := range samples {
		for _, a := range s.Evaluator.Evaluate(smp) {
			a.SessionID = sess.ID()
			a.ShipmentID = sess.ShipmentID()
			raised = append(raised, a)
		}
	}
	at := sess.Advance(s.now(), samples, raised)

	s.persist(ctx, sess, samples, raised)

	for _, a := range raised {
		s.Metrics.RecordAlert(string(a.Type), string(a.Severity))
		s.notifyAlert(ctx, sess, a)
	}

	update := models.TrackingUpdate{
		SessionID:  sess.ID(),
		ShipmentID: sess.ShipmentID(),
		At:         at,
		Samples:    samples,
		Source:     source,
	}
	sess.Emit(func(active bool) {
		if !active {
			s.Logger.Debug("session ended during cycle, events skipped", zap.String("session_id", sess.ID()))
			return
		}
		s.emit(ctx, sess, models.EventTrackingUpdate, update)
		if len(raised) > 0 {
			s.publishAlerts(ctx, sess, raised)
		}
	})
	return nil
}

// publishAlerts sends the batch to the shipment and owner channels. The
// regulatory channel only gets the high severity part.
func (s *Service) publishAlerts(ctx context.Context, sess *sessions.Session, raised []*models.AlertRecord) {
	payload := models.AlertsEvent{SessionID: sess.ID(), ShipmentID: sess.ShipmentID(), Alerts: raised}
	routes := []broadcast.Route{
		{Channel: broadcast.ShipmentChannel(sess.ShipmentID()), Payload: payload},
		{Channel: broadcast.UserChannel(sess.OwnerUserID()), Payload: payload},
	}
	if high := alerts.Escalated(raised); len(high) > 0 {
		routes = append(routes, broadcast.Route{
			Channel: broadcast.RoleChannel(s.cfg.RegulatoryRole),
			Payload: models.AlertsEvent{SessionID: sess.ID(), ShipmentID: sess.ShipmentID(), Alerts: high},
		})
	}
	s.Dispatcher.PublishRoutes(models.EventTrackingAlerts, routes...)
	s.mirror(ctx, sess, models.EventTrackingAlerts, payload)
}

// persist writes the authoritative copy. Failures are logged only.
func (s *Service) persist(ctx context.Context, sess *sessions.Session, samples []models.SignalSample, raised []*models.AlertRecord) {
	if s.Shipments == nil {
		return
	}
	for _, smp := range samples {
		if smp.Type != models.SignalLocation || smp.Location == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		err := s.Shipments.UpdateLocation(pctx, sess.ShipmentID(), *smp.Location)
		cancel()
		if err != nil {
			s.Logger.Warn("update location failed",
				zap.String("session_id", sess.ID()),
				zap.String("shipment_id", sess.ShipmentID()),
				zap.Error(err),
			)
		}
	}
	for _, a := range raised {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		err := s.Shipments.AppendAlert(pctx, sess.ShipmentID(), a)
		cancel()
		if err != nil {
			s.Logger.Warn("append alert failed",
				zap.String("session_id", sess.ID()),
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
	}
}

var alertTitles = map[models.AlertType]string{
	models.AlertTemperatureBreach:  "Temperature out of range",
	models.AlertHumidityBreach:     "Humidity out of range",
	models.AlertQualityDegradation: "Quality degraded",
}

func (s *Service) notifyAlert(ctx context.Context, sess *sessions.Session, a *models.AlertRecord) {
	if s.Notifier == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"alertId":    a.ID,
		"sessionId":  a.SessionID,
		"shipmentId": a.ShipmentID,
		"severity":   a.Severity,
		"value":      a.Value,
	})
	title, ok := alertTitles[a.Type]
	if !ok {
		title = string(a.Type)
	}
	_, err := s.Notifier.Notify(ctx, sess.OwnerUserID(), &models.Notification{
		Kind:    string(a.Type),
		Title:   title,
		Message: a.Message,
		Payload: payload,
	})
	if err != nil {
		s.Logger.Warn("alert notification failed",
			zap.String("session_id", sess.ID()),
			zap.String("recipient_id", sess.OwnerUserID()),
			zap.Error(err),
		)
	}
}

// emit publishes a session event to the shipment and owner channels and
// mirrors it to the ledger feed.
func (s *Service) emit(ctx context.Context, sess *sessions.Session, event string, payload any) {
	s.Dispatcher.PublishMany([]string{
		broadcast.ShipmentChannel(sess.ShipmentID()),
		broadcast.UserChannel(sess.OwnerUserID()),
	}, event, payload)
	s.mirror(ctx, sess, event, payload)
}

func (s *Service) mirror(ctx context.Context, sess *sessions.Session, event string, payload any) {
	if s.Ledger == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.Logger.Warn("ledger encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	msg := messages.LedgerEvent{
		Event:       event,
		SessionID:   sess.ID(),
		ShipmentID:  sess.ShipmentID(),
		OwnerUserID: sess.OwnerUserID(),
		Payload:     raw,
		EmittedAt:   s.now(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()
	if err := s.Ledger.Publish(pctx, s.cfg.LedgerTopic, []byte(sess.ShipmentID()), b); err != nil {
		s.Logger.Warn("ledger publish failed",
			zap.String("session_id", sess.ID()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// Housekeeping expires stale sessions and sweeps expired notifications.
func (s *Service) Housekeeping(ctx context.Context) error {
	now := s.now()
	for _, sess := range s.Sessions.Stale(now, s.cfg.StaleAfter) {
		s.end(ctx, sess.ID(), models.SessionStatusExpired)
		if s.Notifier != nil {
			_, err := s.Notifier.Notify(ctx, sess.OwnerUserID(), &models.Notification{
				Kind:    models.NotificationKindSessionExpired,
				Title:   "Live tracking stopped",
				Message: fmt.Sprintf("Tracking of shipment %s expired after %s without updates", sess.ShipmentID(), s.cfg.StaleAfter),
			})
			if err != nil {
				s.Logger.Warn("expiry notification failed", zap.String("session_id", sess.ID()), zap.Error(err))
			}
		}
	}

	if s.Notifier != nil {
		n, err := s.Notifier.Sweep(ctx)
		if err != nil {
			return errors.Wrap(err, "sweep notifications")
		}
		if n > 0 {
			s.Logger.Info("expired notifications swept", zap.Int("count", n))
		}
	}
	return nil
}

// Health reports engine and dependency status.
func (s *Service) Health(ctx context.Context) models.SystemHealth {
	now := s.now()
	h := models.SystemHealth{
		Status:         models.HealthStatusOK,
		ActiveSessions: s.Sessions.Count(),
		StartedAt:      s.startedAt,
		UptimeSeconds:  now.Sub(s.startedAt).Seconds(),
		Subsystems:     map[string]string{},
		Connections:    s.Dispatcher.Registry().Connections(),
		Scheduler:      s.Scheduler.Stats(),
		CheckedAt:      now,
	}
	for _, p := range s.Pingers {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			h.Subsystems[p.Name()] = models.SubsystemDown
			h.Status = models.HealthStatusDegraded
			s.Logger.Warn("subsystem unreachable", zap.String("subsystem", p.Name()), zap.Error(err))
			continue
		}
		h.Subsystems[p.Name()] = models.SubsystemUp
	}
	return h
}

func (s *Service) healthTick(ctx context.Context) error {
	h := s.Health(ctx)
	s.Metrics.SetSessionsActive(h.ActiveSessions)
	s.Metrics.SetConnections(h.Connections)
	s.Dispatcher.Publish(broadcast.GlobalChannel, models.EventSystemHealth, h)
	if s.HealthSink != nil {
		s.HealthSink(h)
	}
	return nil
}

// BroadcastToChannel lets privileged callers push an arbitrary event. A
// user channel target also gets a stored broadcast notification.
func (s *Service) BroadcastToChannel(ctx context.Context, actor models.Actor, channel, event string, payload json.RawMessage) (int, error) {
	if !s.Privileged(actor.Role) {
		return 0, errors.Wrapf(models.ErrForbidden, "role %q may not broadcast", actor.Role)
	}
	if !broadcast.ValidChannel(channel) {
		return 0, errors.Wrapf(models.ErrInvalidArgument, "channel %q", channel)
	}
	if event == "" {
		return 0, errors.Wrap(models.ErrInvalidArgument, "event is required")
	}

	delivered := s.Dispatcher.Publish(channel, event, payload)

	if uid, ok := broadcast.UserFromChannel(channel); ok && s.Notifier != nil {
		_, err := s.Notifier.Notify(ctx, uid, &models.Notification{
			Kind:    models.NotificationKindBroadcast,
			Title:   event,
			Message: fmt.Sprintf("Message from %s", actor.UserID),
			Payload: payload,
		})
		if err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

// Shutdown stops every session and waits for running work up to the
// configured grace period.
func (s *Service) Shutdown(ctx context.Context) error {
	for _, sess := range s.Sessions.List() {
		s.end(ctx, sess.ID(), models.SessionStatusStopped)
	}
	gctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()
	return s.Scheduler.Shutdown(gctx)
}
