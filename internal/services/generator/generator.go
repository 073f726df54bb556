package generator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/LiveTrace/internal/integrations/geocoding"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Rand yields values in [0, 1).
type Rand interface {
	Float64() float64
}

type Config struct {
	MaxCoordStep   float64 // degrees per axis per cycle, default 0.0006 (~100 m)
	TempStep       float64 // default 1 °C
	HumidityStep   float64 // default 2.5 %
	QualityStep    float64 // default 0.5
	GeocodeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxCoordStep:   0.0006,
		TempStep:       1,
		HumidityStep:   2.5,
		QualityStep:    0.5,
		GeocodeTimeout: 5 * time.Second,
	}
}

// Generator produces the next simulated sample from the last known state.
type Generator struct {
	cfg    Config
	r      Rand
	geo    geocoding.Client
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, geo geocoding.Client, r Rand, logger *zap.Logger) *Generator {
	def := DefaultConfig()
	if cfg.MaxCoordStep <= 0 {
		cfg.MaxCoordStep = def.MaxCoordStep
	}
	if cfg.TempStep <= 0 {
		cfg.TempStep = def.TempStep
	}
	if cfg.HumidityStep <= 0 {
		cfg.HumidityStep = def.HumidityStep
	}
	if cfg.QualityStep <= 0 {
		cfg.QualityStep = def.QualityStep
	}
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = def.GeocodeTimeout
	}
	if r == nil {
		r = newLockedRand(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		cfg:    cfg,
		r:      r,
		geo:    geo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NextSample derives a new sample of type t from st.
func (g *Generator) NextSample(ctx context.Context, st models.SignalState, t models.SignalType) (models.SignalSample, error) {
	at := g.now()
	switch t {
	case models.SignalLocation:
		loc := g.nextLocation(ctx, st.Location)
		return models.SignalSample{Type: t, Location: &loc, Timestamp: at}, nil
	case models.SignalEnvironment:
		env := models.Environment{
			TemperatureC: clamp(st.Environment.TemperatureC+g.delta(g.cfg.TempStep), 0, 50),
			HumidityPct:  clamp(st.Environment.HumidityPct+g.delta(g.cfg.HumidityStep), 0, 100),
		}
		return models.SignalSample{Type: t, Environment: &env, Timestamp: at}, nil
	case models.SignalQuality:
		score := clamp(st.Quality.Score+g.delta(g.cfg.QualityStep), 0, 100)
		q := models.Quality{Score: score, Grade: Grade(score)}
		return models.SignalSample{Type: t, Quality: &q, Timestamp: at}, nil
	}
	return models.SignalSample{}, errors.Wrapf(models.ErrInvalidArgument, "signal type %q", t)
}

func (g *Generator) nextLocation(ctx context.Context, prev models.Location) models.Location {
	lat := clamp(prev.Lat+g.delta(g.cfg.MaxCoordStep), -90, 90)
	lon := wrapLon(prev.Lon + g.delta(g.cfg.MaxCoordStep))
	return models.Location{Lat: lat, Lon: lon, Address: g.address(ctx, lat, lon)}
}

func (g *Generator) address(ctx context.Context, lat, lon float64) string {
	if g.geo == nil {
		return geocoding.Placeholder(lat, lon)
	}
	gctx, cancel := context.WithTimeout(ctx, g.cfg.GeocodeTimeout)
	defer cancel()
	addr, err := g.geo.ReverseGeocode(gctx, lat, lon)
	if err != nil || addr == "" {
		g.logger.Debug("reverse geocode failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return geocoding.Placeholder(lat, lon)
	}
	return addr
}

// lockedRand serializes access to a *rand.Rand, which is not safe for
// concurrent use. Every session goroutine draws from the same Generator.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// delta is uniform in [-step, step).
func (g *Generator) delta(step float64) float64 {
	return (g.r.Float64()*2 - 1) * step
}

// Grade maps a quality score to its label.
func Grade(score float64) string {
	switch {
	case score >= 95:
		return "Premium"
	case score >= 90:
		return "Grade A"
	case score >= 80:
		return "Grade B"
	case score >= 70:
		return "Grade C"
	default:
		return "Rejected"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	if lon < -180 {
		return lon + 360
	}
	return lon
}
