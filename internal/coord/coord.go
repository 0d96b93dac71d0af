// Package coord is the sampler-side handle to the shared redis broker used to
// exchange experience and policy weights between processes.
//
// A nil *Client is the disabled backend. Every method is safe to call on it
// and data calls become no-ops, so callers never branch on an error for a
// backend that was switched off.
package coord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/SindhuVenna/catalyst/internal/config"
)

const (
	DefaultHost        = "localhost"
	DefaultDialTimeout = 3 * time.Second

	TrajectoriesKey = "trajectories"
	WeightsKey      = "weights"
)

type Settings struct {
	Enabled     bool
	Host        string
	Port        int
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

func SettingsFromConfig(cfg config.RedisConfig, enabled bool) Settings {
	s := Settings{
		Enabled: enabled,
		Host:    strings.TrimSpace(cfg.Host),
		Port:    cfg.Port,
		DB:      cfg.DB,
		Prefix:  cfg.Prefix,
	}
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port <= 0 {
		s.Port = config.DefaultRedisPort
	}
	return s
}

func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// UnavailableError reports that the broker could not be reached when the
// worker started. It is fatal to that worker and never retried.
type UnavailableError struct {
	Addr string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("coordination backend unavailable at %s: %v", e.Addr, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type Client struct {
	rdb    *redis.Client
	addr   string
	prefix string
}

// Dial opens the single broker connection for this process. A disabled
// backend yields (nil, nil) without touching the network.
func Dial(ctx context.Context, s Settings) (*Client, error) {
	if !s.Enabled {
		return nil, nil
	}
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	addr := s.Addr()
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           s.DB,
		DialTimeout:  timeout,
		MaxRetries:   -1,
		PoolSize:     1,
		MinIdleConns: 0,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &UnavailableError{Addr: addr, Err: err}
	}
	return &Client{rdb: rdb, addr: addr, prefix: s.Prefix}, nil
}

func (c *Client) Enabled() bool { return c != nil }

func (c *Client) Prefix() string {
	if c == nil {
		return ""
	}
	return c.prefix
}

func (c *Client) Addr() string {
	if c == nil {
		return ""
	}
	return c.addr
}

// Key namespaces name under the configured prefix as "<prefix>_<name>".
func (c *Client) Key(name string) string {
	return PrefixedKey(c.Prefix(), name)
}

func PrefixedKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Trajectory is one collected episode as stored on the broker.
type Trajectory struct {
	WorkerID     int         `msgpack:"worker_id"`
	Episode      int         `msgpack:"episode"`
	Observations [][]float64 `msgpack:"observations"`
	Actions      [][]float64 `msgpack:"actions"`
	Rewards      []float64   `msgpack:"rewards"`
	Done         bool        `msgpack:"done"`
}

func (t Trajectory) Return() float64 {
	total := 0.0
	for _, r := range t.Rewards {
		total += r
	}
	return total
}

// PushTrajectory appends the encoded episode to the shared trajectory list.
func (c *Client) PushTrajectory(ctx context.Context, traj Trajectory) error {
	if c == nil {
		return nil
	}
	payload, err := msgpack.Marshal(traj)
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	if err := c.rdb.RPush(ctx, c.Key(TrajectoriesKey), payload).Err(); err != nil {
		return fmt.Errorf("push trajectory: %w", err)
	}
	return nil
}

// Weights fetches the latest published policy weights. ok is false when the
// trainer has not published any yet.
func (c *Client) Weights(ctx context.Context) (weights []float64, ok bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	payload, err := c.rdb.Get(ctx, c.Key(WeightsKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch weights: %w", err)
	}
	if err := msgpack.Unmarshal(payload, &weights); err != nil {
		return nil, false, fmt.Errorf("decode weights: %w", err)
	}
	return weights, true, nil
}

func DecodeTrajectory(payload []byte) (Trajectory, error) {
	var traj Trajectory
	if err := msgpack.Unmarshal(payload, &traj); err != nil {
		return Trajectory{}, fmt.Errorf("decode trajectory: %w", err)
	}
	return traj, nil
}

func EncodeWeights(weights []float64) ([]byte, error) {
	return msgpack.Marshal(weights)
}
