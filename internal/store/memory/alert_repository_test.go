package memory

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"pgsentry/internal/domain"
)

func newEvent(ts time.Time) *domain.AlertEvent {
	return &domain.AlertEvent{
		TargetAlias: "db1",
		Alias:       "disk_full",
		Timestamp:   ts,
		Value:       map[string]any{"status": "firing"},
	}
}

func TestAlertRepository_CreateAndGet(t *testing.T) {
	r := NewAlertRepository()
	ctx := context.Background()

	first := newEvent(time.Now())
	if err := r.CreateAlert(ctx, first); err != nil {
		t.Fatalf("CreateAlert error: %v", err)
	}
	second := newEvent(time.Now())
	if err := r.CreateAlert(ctx, second); err != nil {
		t.Fatalf("CreateAlert error: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("IDs = %d, %d, want 1, 2", first.ID, second.ID)
	}

	got, err := r.GetAlert(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetAlert error: %v", err)
	}
	if got.Alias != "disk_full" {
		t.Errorf("Alias = %v, want disk_full", got.Alias)
	}

	// Mutating the returned copy must not change the stored event
	got.Value["status"] = "resolved"
	again, _ := r.GetAlert(ctx, first.ID)
	if again.Value["status"] != "firing" {
		t.Error("stored event was mutated through a returned copy")
	}

	if _, err := r.GetAlert(ctx, 99); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Errorf("GetAlert(99) error = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertRepository_StartDelivery(t *testing.T) {
	r := NewAlertRepository()
	ctx := context.Background()

	event := newEvent(time.Now())
	_ = r.CreateAlert(ctx, event)

	pending, err := r.StartDelivery(ctx, event.ID, []int64{222, 111})
	if err != nil {
		t.Fatalf("StartDelivery error: %v", err)
	}
	if !reflect.DeepEqual(pending, []int64{111, 222}) {
		t.Errorf("pending = %v, want [111 222]", pending)
	}

	// Starting again with the same receivers is a no-op
	pending, _ = r.StartDelivery(ctx, event.ID, []int64{111, 222})
	if !reflect.DeepEqual(pending, []int64{111, 222}) {
		t.Errorf("pending = %v, want [111 222]", pending)
	}
	if rows := r.Deliveries(event.ID); len(rows) != 2 {
		t.Errorf("len(rows) = %d, want 2", len(rows))
	}

	// A delivered row is reset instead of duplicated
	if _, err := r.StopDelivery(ctx, event.ID, []int64{111}); err != nil {
		t.Fatalf("StopDelivery error: %v", err)
	}
	pending, _ = r.StartDelivery(ctx, event.ID, []int64{111})
	if !reflect.DeepEqual(pending, []int64{111, 222}) {
		t.Errorf("pending = %v, want [111 222]", pending)
	}
	if rows := r.Deliveries(event.ID); len(rows) != 2 {
		t.Errorf("len(rows) = %d, want 2 after reset", len(rows))
	}

	if _, err := r.StartDelivery(ctx, 42, []int64{1}); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Errorf("StartDelivery(42) error = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertRepository_StopDeliveryIsIdempotent(t *testing.T) {
	r := NewAlertRepository()
	ctx := context.Background()

	event := newEvent(time.Now())
	_ = r.CreateAlert(ctx, event)
	_, _ = r.StartDelivery(ctx, event.ID, []int64{111, 222})

	changed, err := r.StopDelivery(ctx, event.ID, []int64{111, 333})
	if err != nil {
		t.Fatalf("StopDelivery error: %v", err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}

	changed, _ = r.StopDelivery(ctx, event.ID, []int64{111})
	if changed != 0 {
		t.Errorf("second StopDelivery changed = %d, want 0", changed)
	}

	for _, row := range r.Deliveries(event.ID) {
		if row.ReceiverID == 111 && !row.Delivered {
			t.Error("receiver 111 should be delivered")
		}
		if row.ReceiverID == 222 && row.Delivered {
			t.Error("receiver 222 should still be pending")
		}
	}
}

func TestAlertRepository_PendingDeliveries(t *testing.T) {
	r := NewAlertRepository()
	ctx := context.Background()
	now := time.Now()

	old := newEvent(now.Add(-2 * time.Hour))
	recent := newEvent(now.Add(-time.Minute))
	done := newEvent(now)
	for _, e := range []*domain.AlertEvent{old, recent, done} {
		_ = r.CreateAlert(ctx, e)
	}
	_, _ = r.StartDelivery(ctx, old.ID, []int64{1})
	_, _ = r.StartDelivery(ctx, recent.ID, []int64{3, 2})
	_, _ = r.StartDelivery(ctx, done.ID, []int64{4})
	_, _ = r.StopDelivery(ctx, done.ID, []int64{4})

	got, err := r.PendingDeliveries(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PendingDeliveries error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(PendingDeliveries) = %d, want 1", len(got))
	}
	if got[0].Alert.ID != recent.ID {
		t.Errorf("Alert.ID = %d, want %d", got[0].Alert.ID, recent.ID)
	}
	if !reflect.DeepEqual(got[0].Receivers, []int64{2, 3}) {
		t.Errorf("Receivers = %v, want [2 3]", got[0].Receivers)
	}
}

func TestAlertRepository_ConcurrentStartDelivery(t *testing.T) {
	r := NewAlertRepository()
	ctx := context.Background()

	event := newEvent(time.Now())
	_ = r.CreateAlert(ctx, event)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.StartDelivery(ctx, event.ID, []int64{111, 222})
		}()
	}
	wg.Wait()

	if rows := r.Deliveries(event.ID); len(rows) != 2 {
		t.Errorf("len(rows) = %d, want at most one pending row per receiver", len(rows))
	}
}

func TestAlertCache(t *testing.T) {
	c := NewAlertCache()
	ctx := context.Background()

	got, err := c.Get(ctx, 1)
	if err != nil || got != nil {
		t.Fatalf("Get on empty cache = %v, %v, want nil, nil", got, err)
	}

	event := newEvent(time.Now())
	event.ID = 1
	if err := c.Set(ctx, event); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, _ = c.Get(ctx, 1)
	if got == nil || got.Alias != event.Alias {
		t.Errorf("Get = %v, want cached event", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}
