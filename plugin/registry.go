package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook lists are resolved once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onQuoteComputed       []OnQuoteComputed
	onChapterCreated      []OnChapterCreated
	onChapterUpdated      []OnChapterUpdated
	onChapterDeleted      []OnChapterDeleted
	onFeedbackAdded       []OnFeedbackAdded
	onAttachmentAdded     []OnAttachmentAdded
	onPaymentCreated      []OnPaymentCreated
	onPaymentTransitioned []OnPaymentTransitioned
	onPaymentCompleted    []OnPaymentCompleted
	onPaymentFailed       []OnPaymentFailed
	onPaymentRefunded     []OnPaymentRefunded
	onPaymentDeleted      []OnPaymentDeleted
	onPayoutChecked       []OnPayoutChecked
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	add := func(name string) { hooks = append(hooks, name) }

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		add("OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		add("OnShutdown")
	}
	if v, ok := p.(OnQuoteComputed); ok {
		r.onQuoteComputed = append(r.onQuoteComputed, v)
		add("OnQuoteComputed")
	}
	if v, ok := p.(OnChapterCreated); ok {
		r.onChapterCreated = append(r.onChapterCreated, v)
		add("OnChapterCreated")
	}
	if v, ok := p.(OnChapterUpdated); ok {
		r.onChapterUpdated = append(r.onChapterUpdated, v)
		add("OnChapterUpdated")
	}
	if v, ok := p.(OnChapterDeleted); ok {
		r.onChapterDeleted = append(r.onChapterDeleted, v)
		add("OnChapterDeleted")
	}
	if v, ok := p.(OnFeedbackAdded); ok {
		r.onFeedbackAdded = append(r.onFeedbackAdded, v)
		add("OnFeedbackAdded")
	}
	if v, ok := p.(OnAttachmentAdded); ok {
		r.onAttachmentAdded = append(r.onAttachmentAdded, v)
		add("OnAttachmentAdded")
	}
	if v, ok := p.(OnPaymentCreated); ok {
		r.onPaymentCreated = append(r.onPaymentCreated, v)
		add("OnPaymentCreated")
	}
	if v, ok := p.(OnPaymentTransitioned); ok {
		r.onPaymentTransitioned = append(r.onPaymentTransitioned, v)
		add("OnPaymentTransitioned")
	}
	if v, ok := p.(OnPaymentCompleted); ok {
		r.onPaymentCompleted = append(r.onPaymentCompleted, v)
		add("OnPaymentCompleted")
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
		add("OnPaymentFailed")
	}
	if v, ok := p.(OnPaymentRefunded); ok {
		r.onPaymentRefunded = append(r.onPaymentRefunded, v)
		add("OnPaymentRefunded")
	}
	if v, ok := p.(OnPaymentDeleted); ok {
		r.onPaymentDeleted = append(r.onPaymentDeleted, v)
		add("OnPaymentDeleted")
	}
	if v, ok := p.(OnPayoutChecked); ok {
		r.onPayoutChecked = append(r.onPayoutChecked, v)
		add("OnPayoutChecked")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for each hook, logging failures. Hook errors never reach
// the caller.
func emit[H Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []H, fn func(H) error) {
	r.mu.RLock()
	hooks := list(r)
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return fn(h) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, desk any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(h OnInit) error { return h.OnInit(ctx, desk) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(h OnShutdown) error { return h.OnShutdown(ctx) })
}

func (r *Registry) EmitQuoteComputed(ctx context.Context, req pricing.Request, snap pricing.Snapshot) {
	emit(ctx, r, "OnQuoteComputed", func(r *Registry) []OnQuoteComputed { return r.onQuoteComputed },
		func(h OnQuoteComputed) error { return h.OnQuoteComputed(ctx, req, snap) })
}

func (r *Registry) EmitChapterCreated(ctx context.Context, ch *chapter.Chapter) {
	emit(ctx, r, "OnChapterCreated", func(r *Registry) []OnChapterCreated { return r.onChapterCreated },
		func(h OnChapterCreated) error { return h.OnChapterCreated(ctx, ch) })
}

func (r *Registry) EmitChapterUpdated(ctx context.Context, before, after *chapter.Chapter) {
	emit(ctx, r, "OnChapterUpdated", func(r *Registry) []OnChapterUpdated { return r.onChapterUpdated },
		func(h OnChapterUpdated) error { return h.OnChapterUpdated(ctx, before, after) })
}

func (r *Registry) EmitChapterDeleted(ctx context.Context, ch *chapter.Chapter) {
	emit(ctx, r, "OnChapterDeleted", func(r *Registry) []OnChapterDeleted { return r.onChapterDeleted },
		func(h OnChapterDeleted) error { return h.OnChapterDeleted(ctx, ch) })
}

func (r *Registry) EmitFeedbackAdded(ctx context.Context, ch *chapter.Chapter, fb chapter.Feedback) {
	emit(ctx, r, "OnFeedbackAdded", func(r *Registry) []OnFeedbackAdded { return r.onFeedbackAdded },
		func(h OnFeedbackAdded) error { return h.OnFeedbackAdded(ctx, ch, fb) })
}

func (r *Registry) EmitAttachmentAdded(ctx context.Context, ch *chapter.Chapter, att chapter.Attachment) {
	emit(ctx, r, "OnAttachmentAdded", func(r *Registry) []OnAttachmentAdded { return r.onAttachmentAdded },
		func(h OnAttachmentAdded) error { return h.OnAttachmentAdded(ctx, ch, att) })
}

func (r *Registry) EmitPaymentCreated(ctx context.Context, p *payment.Payment) {
	emit(ctx, r, "OnPaymentCreated", func(r *Registry) []OnPaymentCreated { return r.onPaymentCreated },
		func(h OnPaymentCreated) error { return h.OnPaymentCreated(ctx, p) })
}

// EmitPaymentTransitioned dispatches the generic transition hook and then
// the hook for the new status.
func (r *Registry) EmitPaymentTransitioned(ctx context.Context, p *payment.Payment, from payment.Status, ch *chapter.Chapter, reason string) {
	emit(ctx, r, "OnPaymentTransitioned", func(r *Registry) []OnPaymentTransitioned { return r.onPaymentTransitioned },
		func(h OnPaymentTransitioned) error { return h.OnPaymentTransitioned(ctx, p, from) })

	switch p.Status {
	case payment.StatusCompleted:
		emit(ctx, r, "OnPaymentCompleted", func(r *Registry) []OnPaymentCompleted { return r.onPaymentCompleted },
			func(h OnPaymentCompleted) error { return h.OnPaymentCompleted(ctx, p, ch) })
	case payment.StatusFailed:
		emit(ctx, r, "OnPaymentFailed", func(r *Registry) []OnPaymentFailed { return r.onPaymentFailed },
			func(h OnPaymentFailed) error { return h.OnPaymentFailed(ctx, p, reason) })
	case payment.StatusRefunded:
		emit(ctx, r, "OnPaymentRefunded", func(r *Registry) []OnPaymentRefunded { return r.onPaymentRefunded },
			func(h OnPaymentRefunded) error { return h.OnPaymentRefunded(ctx, p, reason) })
	}
}

func (r *Registry) EmitPaymentDeleted(ctx context.Context, p *payment.Payment) {
	emit(ctx, r, "OnPaymentDeleted", func(r *Registry) []OnPaymentDeleted { return r.onPaymentDeleted },
		func(h OnPaymentDeleted) error { return h.OnPaymentDeleted(ctx, p) })
}

func (r *Registry) EmitPayoutChecked(ctx context.Context, writerID string, amount types.Money, checkErr error) {
	emit(ctx, r, "OnPayoutChecked", func(r *Registry) []OnPayoutChecked { return r.onPayoutChecked },
		func(h OnPayoutChecked) error { return h.OnPayoutChecked(ctx, writerID, amount, checkErr) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a request.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
