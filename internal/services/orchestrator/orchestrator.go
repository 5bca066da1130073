// Package orchestrator drives state-changing ledger requests from
// submission to their terminal outcome.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/domain"
	"github.com/vadiminshakov/collat/internal/services/ledger"
)

// Handle tracks one submitted request. Its phase moves strictly
// forward: Idle, Submitted, AwaitingSettlement, then exactly one of
// Succeeded or Failed. Terminal phases are final; resubmission creates
// a new handle.
type Handle struct {
	id   string
	kind domain.TxKind

	mu            sync.Mutex
	phase         domain.TxPhase
	ref           string
	failureReason string
	done          chan struct{}
}

func newHandle(kind domain.TxKind) *Handle {
	return &Handle{
		id:   uuid.NewString(),
		kind: kind,
		done: make(chan struct{}),
	}
}

// ID returns the client-side request id.
func (h *Handle) ID() string { return h.id }

// Kind returns the operation this handle tracks.
func (h *Handle) Kind() domain.TxKind { return h.kind }

// Phase returns the current lifecycle phase.
func (h *Handle) Phase() domain.TxPhase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// Status projects the phase onto the external status contract.
func (h *Handle) Status() domain.TxStatus {
	return h.Phase().Status()
}

// ExternalReference returns the settlement identifier, empty until the
// ledger accepted the request.
func (h *Handle) ExternalReference() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ref
}

// FailureReason returns the human-readable cause, set only in the
// Failed phase.
func (h *Handle) FailureReason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failureReason
}

// Done is closed once the handle reaches a terminal phase.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the handle is terminal or the context is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return nil
	}
}

// advance moves the phase forward; backward or post-terminal moves are
// ignored.
func (h *Handle) advance(next domain.TxPhase) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase.Terminal() || next <= h.phase {
		return false
	}
	h.phase = next
	if next.Terminal() {
		close(h.done)
	}
	return true
}

func (h *Handle) setRef(ref string) {
	h.mu.Lock()
	h.ref = ref
	h.mu.Unlock()
}

func (h *Handle) fail(reason string) bool {
	h.mu.Lock()
	if h.phase.Terminal() {
		h.mu.Unlock()
		return false
	}
	h.phase = domain.PhaseFailed
	h.failureReason = reason
	close(h.done)
	h.mu.Unlock()
	return true
}

// Event describes one observable handle transition, for logging and
// streaming to the dashboard.
type Event struct {
	HandleID  string          `json:"handle_id"`
	Kind      string          `json:"kind"`
	Phase     string          `json:"phase"`
	Status    domain.TxStatus `json:"status"`
	Reference string          `json:"reference,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	At        time.Time       `json:"at"`
}

// Orchestrator submits requests through the ledger write capability and
// tracks one operation slot per transaction kind. Concurrent submits of
// the same kind produce independent handles; the slot merely holds the
// most recent one.
type Orchestrator struct {
	writer ledger.Writer
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	slots map[domain.TxKind]*Handle
	subs  []chan Event
}

// New creates an orchestrator on top of the given writer.
func New(writer ledger.Writer, logger *zap.Logger) *Orchestrator {
	slots := make(map[domain.TxKind]*Handle, 4)
	for _, kind := range domain.TxKinds() {
		slots[kind] = newHandle(kind)
	}
	return &Orchestrator{
		writer: writer,
		logger: logger,
		now:    time.Now,
		slots:  slots,
	}
}

// Handle returns the current handle for the operation slot.
func (o *Orchestrator) Handle(kind domain.TxKind) *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slots[kind]
}

// Reset returns the operation slot to a fresh Idle handle, discarding
// the previous terminal state. The previous handle keeps running if it
// was still in flight; only the slot's observation moves on.
func (o *Orchestrator) Reset(kind domain.TxKind) *Handle {
	h := newHandle(kind)
	o.mu.Lock()
	o.slots[kind] = h
	o.mu.Unlock()
	return h
}

// Subscribe returns a channel receiving every handle transition.
func (o *Orchestrator) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

// Submit validates the request and, if it passes the guard, issues
// exactly one external write and drives the handle to a terminal phase
// in the background. A request failing the guard returns an Idle handle
// and triggers no external call.
func (o *Orchestrator) Submit(ctx context.Context, req domain.TxRequest) *Handle {
	h := newHandle(req.Kind)
	if !req.Valid() {
		o.logger.Debug("submission skipped by guard",
			zap.String("operation", req.Kind.String()))
		return h
	}

	o.mu.Lock()
	o.slots[req.Kind] = h
	o.mu.Unlock()

	h.advance(domain.PhaseSubmitted)
	o.publish(h)

	go o.drive(ctx, req, h)
	return h
}

func (o *Orchestrator) drive(ctx context.Context, req domain.TxRequest, h *Handle) {
	ref, err := o.writer.Submit(ctx, req, h.id)
	if err != nil {
		// rejected before the write was recorded
		h.fail(err.Error())
		o.logger.Warn("submission rejected",
			zap.String("operation", req.Kind.String()),
			zap.String("reason", err.Error()))
		o.publish(h)
		return
	}

	h.setRef(ref)
	h.advance(domain.PhaseAwaitingSettlement)
	o.logger.Info("awaiting settlement",
		zap.String("operation", req.Kind.String()),
		zap.String("reference", ref))
	o.publish(h)

	// transport failures are indistinguishable from settlement
	// failures here; the caller layers its own timeout if needed
	if err := o.writer.AwaitSettlement(ctx, ref); err != nil {
		h.fail(err.Error())
		o.logger.Warn("settlement failed",
			zap.String("operation", req.Kind.String()),
			zap.String("reference", ref),
			zap.String("reason", err.Error()))
	} else {
		h.advance(domain.PhaseSucceeded)
		o.logger.Info("settlement confirmed",
			zap.String("operation", req.Kind.String()),
			zap.String("reference", ref))
	}
	o.publish(h)
}

func (o *Orchestrator) publish(h *Handle) {
	h.mu.Lock()
	event := Event{
		HandleID:  h.id,
		Kind:      h.kind.String(),
		Phase:     h.phase.String(),
		Status:    h.phase.Status(),
		Reference: h.ref,
		Reason:    h.failureReason,
		At:        o.now(),
	}
	h.mu.Unlock()

	o.mu.Lock()
	subs := o.subs
	o.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
