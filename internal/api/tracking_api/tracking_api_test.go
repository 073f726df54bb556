package tracking_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/BearBump/LiveTrace/internal/services/notifications"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type serviceMock struct {
	mock.Mock
}

func (m *serviceMock) StartSession(ctx context.Context, actor models.Actor, shipmentID string, cfg models.SessionConfig) (models.TrackingSession, error) {
	args := m.Called(ctx, actor, shipmentID, cfg)
	return args.Get(0).(models.TrackingSession), args.Error(1)
}

func (m *serviceMock) StopSession(ctx context.Context, actor models.Actor, id string) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *serviceMock) GetSessionStatus(actor models.Actor, id string) (models.SessionStatusView, error) {
	args := m.Called(actor, id)
	return args.Get(0).(models.SessionStatusView), args.Error(1)
}

func (m *serviceMock) Trigger(actor models.Actor, id string) error {
	return m.Called(actor, id).Error(0)
}

func (m *serviceMock) ResolveAlert(ctx context.Context, actor models.Actor, sessionID, alertID string) (*models.AlertRecord, error) {
	args := m.Called(ctx, actor, sessionID, alertID)
	a, _ := args.Get(0).(*models.AlertRecord)
	return a, args.Error(1)
}

func (m *serviceMock) Ingest(ctx context.Context, shipmentID string, sample models.SignalSample) (int, error) {
	args := m.Called(ctx, shipmentID, sample)
	return args.Int(0), args.Error(1)
}

func (m *serviceMock) Health(ctx context.Context) models.SystemHealth {
	return m.Called(ctx).Get(0).(models.SystemHealth)
}

func (m *serviceMock) BroadcastToChannel(ctx context.Context, actor models.Actor, channel, event string, payload json.RawMessage) (int, error) {
	args := m.Called(ctx, actor, channel, event, payload)
	return args.Int(0), args.Error(1)
}

func (m *serviceMock) Privileged(role string) bool {
	return role == "admin" || role == "regulator"
}

type APISuite struct {
	suite.Suite
	svc    *serviceMock
	notes  *notifications.Memory
	authn  *auth.Authenticator
	server *httptest.Server
}

func (s *APISuite) SetupTest() {
	s.svc = &serviceMock{}
	s.notes = notifications.NewMemory(notifications.DefaultLimits())
	s.authn = auth.New("test-secret")

	r := chi.NewRouter()
	New(s.svc, s.notes, zaptest.NewLogger(s.T())).Mount(r, s.authn.Middleware)
	s.server = httptest.NewServer(r)
}

func (s *APISuite) TearDownTest() {
	s.server.Close()
	s.svc.AssertExpectations(s.T())
}

func (s *APISuite) do(method, path string, actor *models.Actor, body string) *http.Response {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	if actor != nil {
		tok, err := s.authn.Sign(*actor, nil)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var owner = models.Actor{UserID: "u1", Role: "shipper"}

func (s *APISuite) TestRequiresToken() {
	resp := s.do(http.MethodPost, "/api/v1/tracking/sessions", nil, `{"shipmentId":"SC-9"}`)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *APISuite) TestStartSession() {
	s.svc.On("StartSession", mock.Anything, owner, "SC-9", models.SessionConfig{
		Interval:       10 * time.Second,
		TrackedSignals: []models.SignalType{models.SignalEnvironment},
	}).Return(models.TrackingSession{ID: "s1", ShipmentID: "SC-9", Status: models.SessionStatusActive}, nil).Once()

	resp := s.do(http.MethodPost, "/api/v1/tracking/sessions", &owner,
		`{"shipmentId":"SC-9","intervalSeconds":10,"trackedSignals":["environment"]}`)
	s.Equal(http.StatusCreated, resp.StatusCode)
	out := decode[models.TrackingSession](s.T(), resp)
	s.Equal("s1", out.ID)
}

func (s *APISuite) TestErrorMapping() {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Wrap(models.ErrAlreadyActive, "x"), http.StatusConflict},
		{errors.Wrap(models.ErrNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(models.ErrInvalidArgument, "x"), http.StatusBadRequest},
		{errors.Wrap(models.ErrRateLimited, "x"), http.StatusTooManyRequests},
		{errors.Wrap(models.ErrForbidden, "x"), http.StatusForbidden},
		{errors.Wrap(models.ErrAlreadyResolved, "x"), http.StatusConflict},
		{errors.New("pg: connection refused"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		s.Equal(tc.code, StatusOf(tc.err), tc.err.Error())
	}

	s.svc.On("StartSession", mock.Anything, owner, "SC-9", mock.Anything).
		Return(models.TrackingSession{}, errors.New("dial tcp: refused")).Once()
	resp := s.do(http.MethodPost, "/api/v1/tracking/sessions", &owner, `{"shipmentId":"SC-9"}`)
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]string](s.T(), resp)
	s.Equal("temporarily unavailable", body["error"])
}

func (s *APISuite) TestMalformedBody() {
	resp := s.do(http.MethodPost, "/api/v1/tracking/sessions", &owner, `{`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestSessionLifecycleRoutes() {
	s.svc.On("GetSessionStatus", owner, "s1").
		Return(models.SessionStatusView{TrackingSession: models.TrackingSession{ID: "s1"}, IntervalSeconds: 30}, nil).Once()
	s.svc.On("Trigger", owner, "s1").Return(nil).Once()
	s.svc.On("ResolveAlert", mock.Anything, owner, "s1", "a1").
		Return(&models.AlertRecord{ID: "a1", Resolved: true, ResolvedBy: "u1"}, nil).Once()
	s.svc.On("StopSession", mock.Anything, owner, "s1").Return(nil).Once()

	resp := s.do(http.MethodGet, "/api/v1/tracking/sessions/s1", &owner, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	view := decode[models.SessionStatusView](s.T(), resp)
	s.Equal(30.0, view.IntervalSeconds)

	resp = s.do(http.MethodPost, "/api/v1/tracking/sessions/s1/trigger", &owner, "")
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/tracking/sessions/s1/alerts/a1/resolve", &owner, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(decode[models.AlertRecord](s.T(), resp).Resolved)

	resp = s.do(http.MethodDelete, "/api/v1/tracking/sessions/s1", &owner, "")
	s.Equal(http.StatusNoContent, resp.StatusCode)
}

func (s *APISuite) TestIngestIsPrivileged() {
	resp := s.do(http.MethodPost, "/api/v1/tracking/shipments/SC-9/samples", &owner,
		`{"type":"environment","environment":{"temperatureC":40,"humidityPct":50}}`)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	admin := models.Actor{UserID: "ops", Role: "admin"}
	s.svc.On("Ingest", mock.Anything, "SC-9", mock.MatchedBy(func(smp models.SignalSample) bool {
		return smp.Type == models.SignalEnvironment && smp.Environment.TemperatureC == 40
	})).Return(2, nil).Once()
	resp = s.do(http.MethodPost, "/api/v1/tracking/shipments/SC-9/samples", &admin,
		`{"type":"environment","environment":{"temperatureC":40,"humidityPct":50}}`)
	s.Equal(http.StatusAccepted, resp.StatusCode)
	s.Equal(2, decode[map[string]int](s.T(), resp)["sessions"])
}

func (s *APISuite) TestHealthIsPublic() {
	s.svc.On("Health", mock.Anything).Return(models.SystemHealth{Status: models.HealthStatusOK, ActiveSessions: 3}).Once()
	resp := s.do(http.MethodGet, "/api/v1/system/health", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(3, decode[models.SystemHealth](s.T(), resp).ActiveSessions)

	s.svc.On("Health", mock.Anything).Return(models.SystemHealth{Status: models.HealthStatusDegraded}).Once()
	resp = s.do(http.MethodGet, "/api/v1/system/health", nil, "")
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func (s *APISuite) TestNotifications() {
	ctx := context.Background()
	for _, kind := range []string{"a", "b", "a"} {
		_, err := s.notes.Append(ctx, "u1", &models.Notification{Kind: kind, Title: kind})
		s.Require().NoError(err)
	}
	other, err := s.notes.Append(ctx, "u2", &models.Notification{Kind: "a"})
	s.Require().NoError(err)

	resp := s.do(http.MethodGet, "/api/v1/notifications?kind=a&limit=10", &owner, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	list := decode[map[string][]*models.Notification](s.T(), resp)["notifications"]
	s.Len(list, 2)

	resp = s.do(http.MethodGet, "/api/v1/notifications?limit=x", &owner, "")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/notifications/unread-count", &owner, "")
	s.Equal(3, decode[map[string]int](s.T(), resp)["unread"])

	resp = s.do(http.MethodPost, "/api/v1/notifications/"+list[0].ID+"/read", &owner, "")
	s.Equal(http.StatusNoContent, resp.StatusCode)

	// someone else's record is invisible
	resp = s.do(http.MethodPost, "/api/v1/notifications/"+other.ID+"/read", &owner, "")
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/notifications/read-all", &owner, "")
	s.Equal(2, decode[map[string]int](s.T(), resp)["marked"])
	resp = s.do(http.MethodPost, "/api/v1/notifications/read-all", &owner, "")
	s.Equal(0, decode[map[string]int](s.T(), resp)["marked"])

	resp = s.do(http.MethodDelete, "/api/v1/notifications/"+list[1].ID, &owner, "")
	s.Equal(http.StatusNoContent, resp.StatusCode)
	resp = s.do(http.MethodDelete, "/api/v1/notifications/"+list[1].ID, &owner, "")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APISuite) TestBroadcast() {
	admin := models.Actor{UserID: "ops", Role: "admin"}
	s.svc.On("BroadcastToChannel", mock.Anything, admin, "role:regulator", "maintenance", json.RawMessage(`{"at":"now"}`)).
		Return(4, nil).Once()
	resp := s.do(http.MethodPost, "/api/v1/broadcast", &admin,
		`{"channel":"role:regulator","event":"maintenance","payload":{"at":"now"}}`)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(4, decode[map[string]int](s.T(), resp)["delivered"])

	s.svc.On("BroadcastToChannel", mock.Anything, owner, "global", "x", mock.Anything).
		Return(0, errors.Wrap(models.ErrForbidden, "role")).Once()
	resp = s.do(http.MethodPost, "/api/v1/broadcast", &owner, `{"channel":"global","event":"x"}`)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}
