package binding

import (
	"sync"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
	"go.uber.org/zap"
)

// TopicStatus carries StatusChanged events on the application bus.
const TopicStatus = "binding:status"

// Source of a status observation.
const (
	SourceStart   = "start"
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
	SourceSweep   = "sweep"
)

// StatusChanged is published after a status has been persisted.
type StatusChanged struct {
	TenantID   string               `json:"tenant_id"`
	LineID     string               `json:"line_id"`
	InstanceID string               `json:"instance_id"`
	Previous   domain.BindingStatus `json:"previous"`
	Status     domain.BindingStatus `json:"status"`
	Remote     string               `json:"remote"`
	Source     string               `json:"source"`
	At         time.Time            `json:"at"`
}

// hub fans status events out to Subscribe callers. EventBus matches handlers
// by code pointer, so closures from one literal cannot be unsubscribed
// individually; the hub keys them by id instead.
type hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(evt StatusChanged)
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]func(evt StatusChanged))}
}

func (h *hub) add(fn func(evt StatusChanged)) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = fn
	return h.next
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *hub) dispatch(evt StatusChanged) {
	h.mu.RLock()
	fns := make([]func(evt StatusChanged), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		deliver(fn, evt)
	}
}

func deliver(fn func(evt StatusChanged), evt StatusChanged) {
	defer func() {
		if err := recover(); err != nil {
			zap.L().Error("binding: subscriber panic", zap.Any("panic", err), zap.String("line", evt.LineID))
		}
	}()
	fn(evt)
}

// Subscription is returned by Coordinator.Subscribe.
type Subscription struct {
	hub  *hub
	id   uint64
	once sync.Once
}

// Close detaches the handler. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}
