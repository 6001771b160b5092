package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/model"
)

const (
	OpInsert  = "INSERT"
	OpDelete  = "DELETE"
	OpEmptied = "EMPTIED"
)

type Timers interface {
	GetOrCreate(ctx context.Context, roomID string) model.TimerState
	Evict(ctx context.Context, roomID string)
}

type Config struct {
	DatabaseURL  string
	Channel      string
	PingInterval time.Duration
	MinReconnect time.Duration
	MaxReconnect time.Duration
}

func DefaultConfig() Config {
	return Config{
		Channel:      "room_lifecycle",
		PingInterval: 90 * time.Second,
		MinReconnect: 10 * time.Second,
		MaxReconnect: time.Minute,
	}
}

type notification struct {
	Op     string `json:"op"`
	RoomID string `json:"room_id"`
}

// Listener turns room lifecycle notifications into timer seeding and
// eviction. OnEvict hooks run after the timer is evicted.
type Listener struct {
	cfg      Config
	timers   Timers
	listener *pq.Listener
	onEvict  []func(roomID string)
}

func NewListener(cfg Config, timers Timers, onEvict ...func(roomID string)) (*Listener, error) {
	defaults := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = defaults.Channel
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.MinReconnect <= 0 {
		cfg.MinReconnect = defaults.MinReconnect
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = defaults.MaxReconnect
	}

	l := pq.NewListener(cfg.DatabaseURL, cfg.MinReconnect, cfg.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Error().Err(err).Msg("room lifecycle listener event")
		}
	})
	if err := l.Listen(cfg.Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Channel, err)
	}
	log.Info().Str("channel", cfg.Channel).Msg("listening for room lifecycle notifications")

	return &Listener{cfg: cfg, timers: timers, listener: l, onEvict: onEvict}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				continue
			}
			if err := l.handle(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("room lifecycle notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("room lifecycle listener ping")
			}
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) error {
	return dispatch(ctx, l.timers, l.onEvict, payload)
}

func dispatch(ctx context.Context, timers Timers, onEvict []func(string), payload string) error {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if n.RoomID == "" {
		return fmt.Errorf("notification without room_id: %q", payload)
	}

	switch strings.ToUpper(n.Op) {
	case OpInsert:
		timers.GetOrCreate(ctx, n.RoomID)
	case OpDelete, OpEmptied:
		timers.Evict(ctx, n.RoomID)
		for _, hook := range onEvict {
			hook(n.RoomID)
		}
	default:
		return fmt.Errorf("unknown room lifecycle op %q", n.Op)
	}
	log.Debug().Str("op", n.Op).Str("room_id", n.RoomID).Msg("room lifecycle handled")
	return nil
}
