package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/platform/metrics"
)

// Poller periodically reconciles submitted preauths and claims against their
// payers, covering payers that never call our webhook.
type Poller struct {
	svc       *Service
	batchSize int
	log       zerolog.Logger
	metrics   *metrics.Metrics

	running atomic.Bool
}

// PollStats summarizes one reconciliation cycle.
type PollStats struct {
	PreauthsChecked int  `json:"preauths_checked"`
	PreauthsUpdated int  `json:"preauths_updated"`
	ClaimsChecked   int  `json:"claims_checked"`
	ClaimsUpdated   int  `json:"claims_updated"`
	Errors          int  `json:"errors"`
	Skipped         bool `json:"skipped"`
}

func NewPoller(svc *Service, batchSize int, m *metrics.Metrics, log zerolog.Logger) *Poller {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Poller{svc: svc, batchSize: batchSize, metrics: m, log: log}
}

// Run polls on the given interval until the context ends.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", interval).Msg("reconciliation poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("reconciliation poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single reconciliation cycle. Overlapping cycles are
// skipped outright: two concurrent cycles would double-poll every payer.
func (p *Poller) PollOnce(ctx context.Context) PollStats {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Debug().Msg("poll cycle still in progress, skipping")
		p.metrics.PollerCycles.WithLabelValues("skipped").Inc()
		return PollStats{Skipped: true}
	}
	defer p.running.Store(false)

	stats := PollStats{}
	p.pollPreauths(ctx, &stats)
	p.pollClaims(ctx, &stats)

	outcome := "ok"
	if stats.Errors > 0 {
		outcome = "partial"
	}
	p.metrics.PollerCycles.WithLabelValues(outcome).Inc()
	p.log.Info().
		Int("preauths_checked", stats.PreauthsChecked).
		Int("preauths_updated", stats.PreauthsUpdated).
		Int("claims_checked", stats.ClaimsChecked).
		Int("claims_updated", stats.ClaimsUpdated).
		Int("errors", stats.Errors).
		Msg("reconciliation cycle finished")
	return stats
}

func (p *Poller) pollPreauths(ctx context.Context, stats *PollStats) {
	items, err := p.svc.preauths.ListPollable(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("listing pollable preauths failed")
		stats.Errors++
		return
	}
	for _, pr := range items {
		if ctx.Err() != nil {
			return
		}
		cfg, err := p.svc.configs.FindActive(ctx, pr.BranchID, pr.PayerID)
		if err != nil || cfg == nil || cfg.IsManual() {
			continue
		}
		stats.PreauthsChecked++
		before := pr.Status
		if _, err := p.svc.RefreshPreauthStatus(ctx, pr.ID); err != nil {
			p.log.Warn().Err(err).Str("preauth_id", pr.ID.String()).Msg("preauth status refresh failed")
			stats.Errors++
			continue
		}
		after, err := p.svc.preauths.GetByID(ctx, pr.ID)
		if err == nil && after != nil && after.Status != before {
			stats.PreauthsUpdated++
			p.metrics.PollerUpdated.WithLabelValues(EntityPreauth).Inc()
		}
	}
}

func (p *Poller) pollClaims(ctx context.Context, stats *PollStats) {
	items, err := p.svc.claims.ListPollable(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("listing pollable claims failed")
		stats.Errors++
		return
	}
	for _, cl := range items {
		if ctx.Err() != nil {
			return
		}
		cfg, err := p.svc.configs.FindActive(ctx, cl.BranchID, cl.PayerID)
		if err != nil || cfg == nil || cfg.IsManual() {
			continue
		}
		stats.ClaimsChecked++
		before := cl.Status
		if _, err := p.svc.RefreshClaimStatus(ctx, cl.ID); err != nil {
			p.log.Warn().Err(err).Str("claim_id", cl.ID.String()).Msg("claim status refresh failed")
			stats.Errors++
			continue
		}
		after, err := p.svc.claims.GetByID(ctx, cl.ID)
		if err == nil && after != nil && after.Status != before {
			stats.ClaimsUpdated++
			p.metrics.PollerUpdated.WithLabelValues(EntityClaim).Inc()
		}
	}
}
