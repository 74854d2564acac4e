package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/domain/payerconfig"
	"github.com/payerlink/payerlink/internal/platform/metrics"
)

func newPollerFixture(t *testing.T) (*gatewayFixture, *Poller) {
	t.Helper()
	f := newGatewayFixture(t)
	p := NewPoller(f.svc, 50, metrics.New(), zerolog.Nop())
	return f, p
}

func (f *gatewayFixture) seedSubmittedPreauth(ref string) *PreauthRequest {
	p := f.seedPreauth()
	p.Status = PreauthStatusSubmitted
	p.GatewayRefID = &ref
	f.preauths.put(p)
	return p
}

func TestPollOnce_RefreshesSubmittedEntities(t *testing.T) {
	f, poller := newPollerFixture(t)
	f.seedSubmittedPreauth("REF-A")
	amount := 40000.0
	f.adapter.statusResult = &StatusResult{Status: StatusApproved, ApprovedAmount: &amount}

	stats := poller.PollOnce(context.Background())
	if stats.Skipped {
		t.Fatal("first cycle must not be skipped")
	}
	if stats.PreauthsChecked != 1 || stats.PreauthsUpdated != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if f.adapter.statusCalls != 1 {
		t.Errorf("expected 1 adapter status call, got %d", f.adapter.statusCalls)
	}
}

func TestPollOnce_OverlapGuardSkipsWithoutAdapterCalls(t *testing.T) {
	f, poller := newPollerFixture(t)
	f.seedSubmittedPreauth("REF-B")
	f.adapter.statusResult = &StatusResult{Status: StatusPending}

	// Simulate an in-flight cycle.
	if !poller.running.CompareAndSwap(false, true) {
		t.Fatal("fixture should start idle")
	}
	defer poller.running.Store(false)

	stats := poller.PollOnce(context.Background())
	if !stats.Skipped {
		t.Fatal("overlapping cycle must be skipped")
	}
	if f.adapter.statusCalls != 0 {
		t.Fatalf("skipped cycle must make zero adapter calls, got %d", f.adapter.statusCalls)
	}
}

func TestPollOnce_SkipsManualModes(t *testing.T) {
	f, poller := newPollerFixture(t)
	f.cfg.IntegrationMode = payerconfig.ModePortalAssisted
	f.seedSubmittedPreauth("PA-PORTAL-X")
	f.adapter.statusResult = &StatusResult{Status: StatusPending}

	stats := poller.PollOnce(context.Background())
	if stats.PreauthsChecked != 0 {
		t.Errorf("portal-assisted entities must not be polled, stats: %+v", stats)
	}
	if f.adapter.statusCalls != 0 {
		t.Errorf("expected zero adapter calls, got %d", f.adapter.statusCalls)
	}
}

func TestPollOnce_ErrorIsolation(t *testing.T) {
	f, poller := newPollerFixture(t)
	f.seedSubmittedPreauth("REF-C")
	f.seedSubmittedPreauth("REF-D")
	f.adapter.statusErr = context.DeadlineExceeded

	stats := poller.PollOnce(context.Background())
	if stats.PreauthsChecked != 2 {
		t.Errorf("one failing entity must not stop the cycle, checked %d", stats.PreauthsChecked)
	}
	if stats.Errors != 2 {
		t.Errorf("expected 2 errors, got %d", stats.Errors)
	}
}

func TestPollOnce_ConcurrentCyclesSingleFlight(t *testing.T) {
	f, poller := newPollerFixture(t)
	f.seedSubmittedPreauth("REF-E")
	f.adapter.statusResult = &StatusResult{Status: StatusPending}

	var wg sync.WaitGroup
	skipped := 0
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats := poller.PollOnce(context.Background())
			if stats.Skipped {
				mu.Lock()
				skipped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if skipped == 0 {
		t.Log("all cycles ran sequentially, nothing overlapped")
	}
	// However the goroutines interleaved, the guard must have kept every
	// run exclusive: with 1 entity and N runs, calls never exceed N.
	if f.adapter.statusCalls > 4 {
		t.Errorf("adapter called more times than cycles ran: %d", f.adapter.statusCalls)
	}
}
