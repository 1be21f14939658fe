package outbox

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ticketnft/escrow-service/internal/adapters/crdb"
	"github.com/ticketnft/escrow-service/internal/adapters/mongo"
	"github.com/ticketnft/escrow-service/internal/adapters/rabbit"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 32
)

// Publisher drains committed outbox records to the escrow topic exchange.
// Records are marked published only after the broker accepts them; a crash
// between publish and mark means a redelivery, deduplicated downstream by
// the record's dedupe key.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	audit     *mongo.AuditLogger
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, audit *mongo.AuditLogger, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, audit: audit, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Body:        rec.Payload,
			}
			if err := p.rabbitPub.Publish(gctx, rec.EventType, msg); err != nil {
				observability.RabbitPublishRetries.Inc()
				return err
			}
			if err := p.repo.MarkPublished(gctx, rec.ID, time.Now()); err != nil {
				return err
			}
			var ev domain.Event
			if err := json.Unmarshal(rec.Payload, &ev); err == nil {
				p.audit.LogTransition(gctx, ev)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	lag, err := p.repo.OldestUnpublishedAge(ctx, time.Now())
	if err != nil {
		return err
	}
	observability.OutboxLag.Set(lag.Seconds())
	return nil
}
