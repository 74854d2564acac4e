package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/payerlink/payerlink/internal/platform/auth"
)

type mockRepo struct {
	events []*Event
	fail   bool
}

func (m *mockRepo) Create(_ context.Context, e *Event) error {
	if m.fail {
		return fmt.Errorf("db down")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockRepo) ListByEntity(_ context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error) {
	var out []*Event
	for _, e := range m.events {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func TestLog_CapturesActor(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	ctx := auth.WithActor(context.Background(), "user-9", "branch-2", []string{"billing"})
	svc.Log(ctx, ActionPreauthSubmit, "PREAUTH", "pa-1", map[string]interface{}{"success": true})

	if len(repo.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(repo.events))
	}
	e := repo.events[0]
	if e.ActorID != "user-9" || e.BranchID != "branch-2" {
		t.Errorf("unexpected actor fields: %+v", e)
	}
	if e.Action != ActionPreauthSubmit {
		t.Errorf("unexpected action: %s", e.Action)
	}
	if e.Meta["success"] != true {
		t.Errorf("expected meta to carry success flag")
	}
}

func TestLog_BestEffort(t *testing.T) {
	repo := &mockRepo{fail: true}
	svc := NewService(repo, zerolog.Nop())

	// Must not panic or surface the failure.
	svc.Log(context.Background(), ActionClaimSubmit, "CLAIM", "cl-1", nil)
}

func TestListByEntity_Filters(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.Log(context.Background(), ActionClaimSubmit, "CLAIM", "cl-1", nil)
	svc.Log(context.Background(), ActionClaimSubmit, "CLAIM", "cl-2", nil)
	svc.Log(context.Background(), ActionPreauthSubmit, "PREAUTH", "pa-1", nil)

	items, total, err := svc.ListByEntity(context.Background(), "CLAIM", "cl-1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 matching event, got %d", total)
	}
}
