package tracking_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type TrackingService interface {
	StartSession(ctx context.Context, actor models.Actor, shipmentID string, cfg models.SessionConfig) (models.TrackingSession, error)
	StopSession(ctx context.Context, actor models.Actor, id string) error
	GetSessionStatus(actor models.Actor, id string) (models.SessionStatusView, error)
	Trigger(actor models.Actor, id string) error
	ResolveAlert(ctx context.Context, actor models.Actor, sessionID, alertID string) (*models.AlertRecord, error)
	Ingest(ctx context.Context, shipmentID string, sample models.SignalSample) (int, error)
	Health(ctx context.Context) models.SystemHealth
	BroadcastToChannel(ctx context.Context, actor models.Actor, channel, event string, payload json.RawMessage) (int, error)
	Privileged(role string) bool
}

type NotificationStore interface {
	List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, id, recipientID string) error
}

type TrackingAPI struct {
	svc    TrackingService
	notes  NotificationStore
	logger *zap.Logger
}

func New(svc TrackingService, notes NotificationStore, logger *zap.Logger) *TrackingAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingAPI{svc: svc, notes: notes, logger: logger}
}

// Mount registers the /api/v1 routes. authn guards everything except the
// system health read.
func (a *TrackingAPI) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/system/health", a.getHealth)

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Post("/tracking/sessions", a.startSession)
			r.Get("/tracking/sessions/{id}", a.getSession)
			r.Delete("/tracking/sessions/{id}", a.stopSession)
			r.Post("/tracking/sessions/{id}/trigger", a.triggerSession)
			r.Post("/tracking/sessions/{id}/alerts/{alertId}/resolve", a.resolveAlert)
			r.Post("/tracking/shipments/{shipmentId}/samples", a.ingestSample)

			r.Get("/notifications", a.listNotifications)
			r.Get("/notifications/unread-count", a.unreadCount)
			r.Post("/notifications/read-all", a.markAllRead)
			r.Post("/notifications/{id}/read", a.markRead)
			r.Delete("/notifications/{id}", a.deleteNotification)

			r.Post("/broadcast", a.broadcast)
		})
	})
}

type startSessionRequest struct {
	ShipmentID      string              `json:"shipmentId"`
	IntervalSeconds float64             `json:"intervalSeconds,omitempty"`
	TrackedSignals  []models.SignalType `json:"trackedSignals,omitempty"`
}

func (a *TrackingAPI) startSession(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, errors.Wrap(models.ErrInvalidArgument, "malformed body"))
		return
	}
	sess, err := a.svc.StartSession(r.Context(), actor, req.ShipmentID, models.SessionConfig{
		Interval:       time.Duration(req.IntervalSeconds * float64(time.Second)),
		TrackedSignals: req.TrackedSignals,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *TrackingAPI) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetSessionStatus(actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *TrackingAPI) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.StopSession(r.Context(), actorOf(r), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) triggerSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Trigger(actorOf(r), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}

func (a *TrackingAPI) resolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.svc.ResolveAlert(r.Context(), actorOf(r), chi.URLParam(r, "id"), chi.URLParam(r, "alertId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *TrackingAPI) ingestSample(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	if !a.svc.Privileged(actor.Role) {
		a.writeError(w, r, errors.Wrapf(models.ErrForbidden, "role %q may not ingest", actor.Role))
		return
	}
	var sample models.SignalSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		a.writeError(w, r, errors.Wrap(models.ErrInvalidArgument, "malformed body"))
		return
	}
	n, err := a.svc.Ingest(r.Context(), chi.URLParam(r, "shipmentId"), sample)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"sessions": n})
}

func (a *TrackingAPI) getHealth(w http.ResponseWriter, r *http.Request) {
	h := a.svc.Health(r.Context())
	code := http.StatusOK
	if h.Status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (a *TrackingAPI) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	q := models.NotificationQuery{
		Kind:       r.URL.Query().Get("kind"),
		UnreadOnly: r.URL.Query().Get("unreadOnly") == "true",
	}
	var err error
	if q.Limit, err = intParam(r, "limit"); err != nil {
		a.writeError(w, r, err)
		return
	}
	if q.Offset, err = intParam(r, "offset"); err != nil {
		a.writeError(w, r, err)
		return
	}
	items, err := a.notes.List(r.Context(), actor.UserID, q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (a *TrackingAPI) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.notes.UnreadCount(r.Context(), actorOf(r).UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (a *TrackingAPI) markRead(w http.ResponseWriter, r *http.Request) {
	if err := a.notes.MarkRead(r.Context(), chi.URLParam(r, "id"), actorOf(r).UserID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.notes.MarkAllRead(r.Context(), actorOf(r).UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (a *TrackingAPI) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.notes.Delete(r.Context(), chi.URLParam(r, "id"), actorOf(r).UserID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (a *TrackingAPI) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, errors.Wrap(models.ErrInvalidArgument, "malformed body"))
		return
	}
	n, err := a.svc.BroadcastToChannel(r.Context(), actorOf(r), req.Channel, req.Event, req.Payload)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

func actorOf(r *http.Request) models.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(models.ErrInvalidArgument, "%s must be an integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
