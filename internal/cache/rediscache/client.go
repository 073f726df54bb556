package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client shared by the cache, the rate limiter and the
// notification store, and verifies it with a PING.
func Connect(ctx context.Context, opt Options) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "redis ping %s", opt.Addr)
	}
	return c, nil
}

// Pinger reports Redis reachability for health checks.
type Pinger struct {
	c redis.Cmdable
}

func NewPinger(c redis.Cmdable) *Pinger { return &Pinger{c: c} }

func (p *Pinger) Name() string { return "redis" }

func (p *Pinger) Ping(ctx context.Context) error {
	if err := p.c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}
