package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/model"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func Subject(prefix, roomID string) string {
	return prefix + ".rooms." + roomID + ".timer"
}

func subjectWildcard(prefix string) string {
	return prefix + ".rooms.*.timer"
}

// NATSPublisher publishes timer events on core NATS. Delivery is at most
// once; a missed event is corrected by the next one.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, roomID, event string, state model.TimerState) error {
	data, err := json.Marshal(NewEvent(roomID, event, state, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal timer event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, roomID), data); err != nil {
		return fmt.Errorf("publish timer event: %w", err)
	}
	return nil
}

// Bridge relays timer events from NATS to the local hub so every instance
// serves the rooms its clients are connected to.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	hub    *Hub
	sub    *nats.Subscription
}

func NewBridge(nc *nats.Conn, prefix string, hub *Hub) *Bridge {
	return &Bridge{nc: nc, prefix: prefix, hub: hub}
}

func (b *Bridge) Start() error {
	sub, err := b.nc.Subscribe(subjectWildcard(b.prefix), b.handle)
	if err != nil {
		return fmt.Errorf("subscribe timer events: %w", err)
	}
	b.sub = sub
	log.Info().Str("subject", sub.Subject).Msg("timer event bridge subscribed")
	return nil
}

func (b *Bridge) Stop() error {
	if b.sub == nil {
		return nil
	}
	if err := b.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe timer events: %w", err)
	}
	return nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding malformed timer event")
		return
	}
	if err := b.hub.Deliver(evt); err != nil {
		log.Warn().Err(err).Msg("timer event dropped")
	}
}
