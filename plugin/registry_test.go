package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/plugin"
)

type recorder struct {
	name string

	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) log(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnChapterCreated(context.Context, *chapter.Chapter) error {
	r.log("chapter.created")
	return nil
}

func (r *recorder) OnPaymentTransitioned(_ context.Context, p *payment.Payment, from payment.Status) error {
	r.log("payment." + string(from) + "->" + string(p.Status))
	return nil
}

func (r *recorder) OnPaymentCompleted(context.Context, *payment.Payment, *chapter.Chapter) error {
	r.log("payment.completed")
	return nil
}

func (r *recorder) OnPaymentFailed(_ context.Context, _ *payment.Payment, reason string) error {
	r.log("payment.failed:" + reason)
	return errors.New("mailer down")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnChapterCreated(ctx context.Context, _ *chapter.Chapter) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterDuplicate(t *testing.T) {
	reg := plugin.NewRegistry()

	if err := reg.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&recorder{name: "a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if reg.Count() != 1 {
		t.Errorf("count: got %d", reg.Count())
	}
	if reg.Get("a") == nil || reg.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesByStatus(t *testing.T) {
	reg := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	if err := reg.Register(rec); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	reg.EmitChapterCreated(ctx, &chapter.Chapter{})
	reg.EmitPaymentTransitioned(ctx, &payment.Payment{Status: payment.StatusCompleted}, payment.StatusPending, nil, "")
	reg.EmitPaymentTransitioned(ctx, &payment.Payment{Status: payment.StatusFailed}, payment.StatusCompleted, nil, "chargeback")

	want := []string{
		"chapter.created",
		"payment.pending->completed",
		"payment.completed",
		"payment.completed->failed",
		"payment.failed:chargeback",
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events: got %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, rec.events[i], want[i])
		}
	}
}

func TestEmitTimeout(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := reg.Register(slow{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	reg.EmitChapterCreated(context.Background(), &chapter.Chapter{})
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
