package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

const (
	streamName      = "STREETBLOCK_BLOCKS"
	SubjectResolved = "streetblock.block.resolved"
	SubjectFailed   = "streetblock.block.failed"
)

// BlockResolvedEvent is published for every resolved block.
type BlockResolvedEvent struct {
	BlockID      string                   `json:"block_id"`
	Scope        domain.Scope             `json:"scope"`
	WayIDs       []string                 `json:"way_ids"`
	LengthMeters float64                  `json:"length_meters"`
	ResolvedAt   time.Time                `json:"resolved_at"`
	GeoJSON      domain.FeatureCollection `json:"geojson"`
}

// BlockFailedEvent is published when a block could not be resolved.
type BlockFailedEvent struct {
	Intersections [2]domain.Intersection `json:"intersections"`
	Area          domain.Area            `json:"area"`
	Reason        string                 `json:"reason"`
	FailedAt      time.Time              `json:"failed_at"`
}

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   jetStream
	now  func() time.Time
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("streetblock"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{"streetblock.block.>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist; update it instead
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js, now: time.Now}, nil
}

// PublishBlockResolved publishes the block with its id as the JetStream
// message id, so a block is stored once even if the publish is retried.
func (p *Publisher) PublishBlockResolved(ctx context.Context, block *domain.Block) error {
	ids := make([]string, len(block.Ways))
	for i, w := range block.Ways {
		ids[i] = w.ID
	}
	data, err := json.Marshal(BlockResolvedEvent{
		BlockID:      block.ID,
		Scope:        block.Scope,
		WayIDs:       ids,
		LengthMeters: block.LengthMeters,
		ResolvedAt:   block.ResolvedAt,
		GeoJSON:      block.FeatureCollection(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectResolved, data, nats.Context(ctx), nats.MsgId(block.ID))
	return err
}

func (p *Publisher) PublishBlockFailed(ctx context.Context, req *domain.BlockRequest, reason string) error {
	data, err := json.Marshal(BlockFailedEvent{
		Intersections: req.Intersections,
		Area:          req.Area,
		Reason:        reason,
		FailedAt:      p.now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectFailed, data, nats.Context(ctx), nats.MsgId(uuid.NewString()))
	return err
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
