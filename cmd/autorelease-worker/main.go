package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketnft/escrow-service/internal/adapters/crdb"
	"github.com/ticketnft/escrow-service/internal/clock"
	"github.com/ticketnft/escrow-service/internal/config"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/escrow"
	"github.com/ticketnft/escrow-service/internal/observability"
)

// workerIdentity is the address the worker presents when firing
// auto-releases. Auto-release is open to any caller, so the identity is
// informational: it shows up in the audit trail as the actor.
const workerIdentity = domain.Address("autorelease-worker")

const scanBatch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	ledger := crdb.NewRepository(pool)

	clk := clock.NewSystem()
	svc, err := escrow.NewService(ledger, clk, escrow.Config{
		Arbiter:     domain.Address(cfg.Arbiter),
		Platform:    domain.Address(cfg.PlatformAccount),
		FeeBps:      cfg.FeeBps,
		GracePeriod: cfg.GracePeriod,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build escrow service: %v", err)
	}

	worker := NewAutoReleaseWorker(ledger, svc, clk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown auto-release worker")
}

// AutoReleaseWorker periodically sweeps orders past their delivery
// deadline and triggers the release to the seller. Eligibility is
// re-checked inside the transition, so a racing confirm or resolve wins
// cleanly and the worker just moves on.
type AutoReleaseWorker struct {
	ledger *crdb.Repository
	svc    *escrow.Service
	clock  clock.Clock
	logger observability.Logger
}

func NewAutoReleaseWorker(ledger *crdb.Repository, svc *escrow.Service, clk clock.Clock, logger observability.Logger) *AutoReleaseWorker {
	return &AutoReleaseWorker{ledger: ledger, svc: svc, clock: clk, logger: logger}
}

func (w *AutoReleaseWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			overdue, err := w.ledger.OverdueOrders(ctx, w.clock.Now(), scanBatch)
			if err != nil {
				w.logger.WithError(err).Error("failed to scan overdue orders")
				continue
			}
			for _, order := range overdue {
				if err := w.releaseWithRetry(ctx, order.ID); err != nil {
					w.logger.WithError(err).WithField("order_id", order.ID).Error("auto-release failed after retries")
				}
			}
		}
	}
}

// releaseWithRetry fires the auto-release, retrying only write conflicts
// with bounded exponential backoff. Guard failures mean another caller
// already settled the order and are not errors here.
func (w *AutoReleaseWorker) releaseWithRetry(ctx context.Context, orderID int64) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := w.svc.AutoRelease(ctx, workerIdentity, orderID)
		switch {
		case err == nil:
			w.logger.WithField("order_id", orderID).Info("order auto-released")
			return nil
		case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrNotYetEligible):
			return nil
		case errors.Is(err, domain.ErrConflict):
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		default:
			return err
		}
	}
	return errors.Newf("auto-release of order %d: conflict retries exhausted", orderID)
}
