package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/LiveTrace/config"
	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/BearBump/LiveTrace/internal/integrations/geocoding/fake"
	"github.com/BearBump/LiveTrace/internal/integrations/geocoding/nominatim"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeShipments struct {
	closed bool
}

func (s *fakeShipments) GetShipment(ctx context.Context, id string) (models.ShipmentSnapshot, error) {
	if id != "SC-9" {
		return models.ShipmentSnapshot{}, errors.Wrapf(models.ErrNotFound, "shipment %s", id)
	}
	return models.ShipmentSnapshot{
		ID:              id,
		Location:        models.Location{Lat: 52.52, Lon: 13.405},
		Environmental:   models.Environment{TemperatureC: 20, HumidityPct: 50},
		QualityTracking: models.Quality{Score: 92, Grade: "Grade A"},
	}, nil
}

func (s *fakeShipments) AppendAlert(ctx context.Context, shipmentID string, a *models.AlertRecord) error {
	return nil
}

func (s *fakeShipments) UpdateLocation(ctx context.Context, shipmentID string, loc models.Location) error {
	return nil
}

func (s *fakeShipments) Name() string                   { return "postgres" }
func (s *fakeShipments) Ping(ctx context.Context) error { return nil }
func (s *fakeShipments) Close()                         { s.closed = true }

func TestDefaultAppFactories(t *testing.T) {
	f := defaultAppFactories()

	cfg := &config.Config{LiveTrack: config.LiveTrackConfig{
		GeocoderMode:    "nominatim",
		GeocoderBaseURL: "http://localhost:8088",
	}}
	_, ok := f.newGeocoder(cfg).(*nominatim.Client)
	require.True(t, ok)

	_, ok = f.newGeocoder(&config.Config{}).(*fake.Client)
	require.True(t, ok)

	require.Nil(t, f.newLedger(&config.Config{}))
	require.Nil(t, f.newConsumer(&config.Config{}, zap.NewNop()))
	q, err := f.newDelivery(&config.Config{})
	require.NoError(t, err)
	require.Nil(t, q)

	kcfg := &config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}}
	require.NotNil(t, f.newLedger(kcfg))
	require.NotNil(t, f.newConsumer(kcfg, zap.NewNop()))
}

func TestBuildApp_RequiresSecretAndShipments(t *testing.T) {
	_, err := buildApp(context.Background(), &config.Config{}, appFactories{}, nil)
	require.Error(t, err)

	cfg := &config.Config{LiveTrack: config.LiveTrackConfig{JWTSecret: "s"}}
	_, err = buildApp(context.Background(), cfg, appFactories{}, nil)
	require.Error(t, err)
}

func TestRun_ServesEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)

	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	cfg := &config.Config{LiveTrack: config.LiveTrackConfig{
		JWTSecret:   "e2e-secret",
		SwaggerPath: sw,
	}}
	ships := &fakeShipments{}
	f := appFactories{
		newShipments: func(ctx context.Context, cfg *config.Config) (shipmentStore, error) { return ships, nil },
		newRedis: func(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
			return redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, f, zaptest.NewLogger(t))
	require.NoError(t, err)

	type addrs struct{ http, grpc string }
	addrCh := make(chan addrs, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx, runOpts{
			httpAddr: "127.0.0.1:0",
			grpcAddr: "127.0.0.1:0",
			onListen: func(h, g string) { addrCh <- addrs{h, g} },
		})
	}()
	ad := <-addrCh
	base := "http://" + ad.http

	get := func(path string) (int, string) {
		var resp *http.Response
		require.Eventually(t, func() bool {
			r, err := http.Get(base + path)
			if err != nil {
				return false
			}
			resp = r
			return true
		}, 2*time.Second, 20*time.Millisecond)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	code, _ := get("/healthz")
	require.Equal(t, http.StatusOK, code)
	code, _ = get("/readyz")
	require.Equal(t, http.StatusOK, code)
	code, body := get("/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"swagger"`)

	tok, err := auth.New("e2e-secret").Sign(models.Actor{UserID: "u1", Role: "shipper"}, nil)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/tracking/sessions", strings.NewReader(`{"shipmentId":"SC-9","intervalSeconds":60}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "livetrace_sessions_started_total 1")

	conn, err := grpc.NewClient(ad.grpc, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: healthServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for servers to stop")
	}
	require.Equal(t, 0, a.svc.Sessions.Count())

	a.Close()
	require.True(t, ships.closed)
}

type fakeIngester struct {
	calls int
	err   error
}

func (f *fakeIngester) Ingest(ctx context.Context, shipmentID string, sample models.SignalSample) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func TestSensorHandler(t *testing.T) {
	ing := &fakeIngester{}
	h := sensorHandler(ing, zaptest.NewLogger(t))
	ctx := context.Background()

	require.Error(t, h(ctx, nil, []byte(`{`)))
	require.Error(t, h(ctx, nil, []byte(`{"shipment_id":"SC-9","type":"environment"}`)))
	require.Equal(t, 0, ing.calls)

	reading := []byte(`{"shipment_id":"SC-9","type":"environment","temperature_c":40,"humidity_pct":50}`)
	require.NoError(t, h(ctx, []byte("SC-9"), reading))
	require.Equal(t, 1, ing.calls)

	ing.err = errors.Wrap(models.ErrNotFound, "no active session")
	err := h(ctx, nil, reading)
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("configPath", "/etc/livetrace.yaml")
	require.Equal(t, "/from/flag.yaml", resolveConfigPath("/from/flag.yaml"))
	require.Equal(t, "/etc/livetrace.yaml", resolveConfigPath(""))
}
