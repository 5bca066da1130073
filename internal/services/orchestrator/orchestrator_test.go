package orchestrator

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/internal/domain"
)

const testAccount = domain.Account("0xabc")

// fakeWriter lets tests control both stages of the write flow. A nil
// settleCh settles immediately with settleErr.
type fakeWriter struct {
	submitErr   error
	settleErr   error
	ref         string
	settleCh    chan error
	submitCalls atomic.Int32
}

func (w *fakeWriter) Submit(_ context.Context, _ domain.TxRequest, _ string) (string, error) {
	w.submitCalls.Add(1)
	if w.submitErr != nil {
		return "", w.submitErr
	}
	return w.ref, nil
}

func (w *fakeWriter) AwaitSettlement(ctx context.Context, _ string) error {
	if w.settleCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-w.settleCh:
			return err
		}
	}
	return w.settleErr
}

func validRequest(kind domain.TxKind) domain.TxRequest {
	return domain.TxRequest{Kind: kind, Amount: big.NewInt(1), Account: testAccount}
}

func waitTerminal(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestSubmitGuardRejectsWithoutExternalCall(t *testing.T) {
	writer := &fakeWriter{ref: "0x1"}
	o := New(writer, zap.NewNop())

	tests := []struct {
		name string
		req  domain.TxRequest
	}{
		{name: "zero amount", req: domain.TxRequest{Kind: domain.TxDeposit, Amount: big.NewInt(0), Account: testAccount}},
		{name: "negative amount", req: domain.TxRequest{Kind: domain.TxBorrow, Amount: big.NewInt(-1), Account: testAccount}},
		{name: "nil amount", req: domain.TxRequest{Kind: domain.TxRepay, Account: testAccount}},
		{name: "no account", req: domain.TxRequest{Kind: domain.TxWithdraw, Amount: big.NewInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := o.Submit(context.Background(), tt.req)
			assert.Equal(t, domain.PhaseIdle, h.Phase())
			assert.Equal(t, domain.StatusIdle, h.Status())
		})
	}
	assert.Equal(t, int32(0), writer.submitCalls.Load(), "guard failures must never reach the ledger")

	// slots keep their pristine idle handles
	for _, kind := range domain.TxKinds() {
		assert.Equal(t, domain.StatusIdle, o.Handle(kind).Status())
	}
}

func TestSubmitSuccessFlow(t *testing.T) {
	writer := &fakeWriter{ref: "0xfeed", settleCh: make(chan error)}
	o := New(writer, zap.NewNop())
	events := o.Subscribe()

	h := o.Submit(context.Background(), validRequest(domain.TxDeposit))
	require.Same(t, h, o.Handle(domain.TxDeposit))

	require.Eventually(t, func() bool {
		return h.Phase() == domain.PhaseAwaitingSettlement
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusPending, h.Status())
	assert.Equal(t, "0xfeed", h.ExternalReference())

	writer.settleCh <- nil
	waitTerminal(t, h)

	assert.Equal(t, domain.PhaseSucceeded, h.Phase())
	assert.Equal(t, domain.StatusSuccess, h.Status())
	assert.Empty(t, h.FailureReason())
	assert.Equal(t, int32(1), writer.submitCalls.Load())

	var statuses []domain.TxStatus
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			statuses = append(statuses, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("expected three published events")
		}
	}
	assert.Equal(t, []domain.TxStatus{domain.StatusPending, domain.StatusPending, domain.StatusSuccess}, statuses)
}

func TestSubmitSynchronousRejection(t *testing.T) {
	writer := &fakeWriter{submitErr: errors.New("insufficient collateral")}
	o := New(writer, zap.NewNop())

	h := o.Submit(context.Background(), validRequest(domain.TxWithdraw))
	waitTerminal(t, h)

	assert.Equal(t, domain.PhaseFailed, h.Phase())
	assert.Equal(t, domain.StatusError, h.Status())
	assert.Equal(t, "insufficient collateral", h.FailureReason())
	assert.Empty(t, h.ExternalReference(), "rejected requests never get a reference")
}

func TestSubmitSettlementFailure(t *testing.T) {
	writer := &fakeWriter{ref: "0xdead", settleErr: errors.New("transaction 0xdead reverted")}
	o := New(writer, zap.NewNop())

	h := o.Submit(context.Background(), validRequest(domain.TxBorrow))
	waitTerminal(t, h)

	assert.Equal(t, domain.StatusError, h.Status())
	assert.Equal(t, "transaction 0xdead reverted", h.FailureReason())
	assert.Equal(t, "0xdead", h.ExternalReference())
}

func TestHandlePhaseMonotonic(t *testing.T) {
	h := newHandle(domain.TxDeposit)

	require.True(t, h.advance(domain.PhaseSubmitted))
	require.True(t, h.advance(domain.PhaseAwaitingSettlement))
	assert.False(t, h.advance(domain.PhaseSubmitted), "backward move must be ignored")

	require.True(t, h.advance(domain.PhaseSucceeded))
	assert.False(t, h.advance(domain.PhaseFailed), "terminal phase must be final")
	assert.False(t, h.fail("late failure"))
	assert.Equal(t, domain.PhaseSucceeded, h.Phase())
	assert.Empty(t, h.FailureReason())
}

func TestResetReturnsSlotToIdle(t *testing.T) {
	writer := &fakeWriter{ref: "0x1"}
	o := New(writer, zap.NewNop())

	h := o.Submit(context.Background(), validRequest(domain.TxRepay))
	waitTerminal(t, h)
	require.Equal(t, domain.StatusSuccess, o.Handle(domain.TxRepay).Status())

	fresh := o.Reset(domain.TxRepay)
	assert.Equal(t, domain.StatusIdle, fresh.Status())
	assert.Same(t, fresh, o.Handle(domain.TxRepay))
	assert.NotEqual(t, h.ID(), fresh.ID())

	// the old handle keeps its terminal state
	assert.Equal(t, domain.StatusSuccess, h.Status())
}

func TestSlotsIndependentPerKind(t *testing.T) {
	writer := &fakeWriter{ref: "0x1", settleCh: make(chan error)}
	o := New(writer, zap.NewNop())

	deposit := o.Submit(context.Background(), validRequest(domain.TxDeposit))
	require.Eventually(t, func() bool {
		return deposit.Status() == domain.StatusPending
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.StatusIdle, o.Handle(domain.TxBorrow).Status())
	assert.Equal(t, domain.StatusIdle, o.Handle(domain.TxWithdraw).Status())

	writer.settleCh <- nil
	waitTerminal(t, deposit)
}
