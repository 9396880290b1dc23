package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/util"
	"github.com/nightvault/agent-wallet/wallet/connection"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

// DefaultDecimals is the ledger's fixed decimal precision for the native
// token.
const DefaultDecimals = 6

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrFundsPending means the available balance alone cannot cover the
	// amount but available plus pending can, i.e. the transfer will likely be
	// fundable once pending coins settle.
	ErrFundsPending     = errors.New("insufficient available funds, transfer is covered by pending funds")
	ErrSubmissionFailed = errors.New("transfer submission failed")
)

type (
	TxStore interface {
		Create(from, to, amount string) (*txstore.Record, error)
		MarkSent(id, ledgerID string) (*txstore.Record, error)
		MarkFailed(id, reason string) (*txstore.Record, error)
	}

	// ConnectionSource is the read side of the recovery supervisor.
	ConnectionSource interface {
		Status() connection.Status
		Balances() *connection.Balances
		Address() string
		Capability() (sdktypes.WalletCapability, error)
	}

	// Pipeline validates transfer requests and drives them through the wallet
	// capability's build, prove and submit steps, recording every state
	// transition in the transaction store. The durable commit point is the
	// Initiated record: from then on any failure is written into the record,
	// never lost.
	Pipeline struct {
		store     TxStore
		conn      ConnectionSource
		decimals  int32
		tokenType string
		log       *slog.Logger

		wg sync.WaitGroup
	}

	// InitiationResult is returned by the non-blocking submit before any
	// network interaction has happened.
	InitiationResult struct {
		ID        string        `json:"id"`
		State     txstore.State `json:"state"`
		ToAddress string        `json:"toAddress"`
		Amount    string        `json:"amount"`
		CreatedAt time.Time     `json:"createdAt"`
	}

	// TransferResult is returned by the blocking submit once the transfer has
	// been broadcast. The gaps are a snapshot of how far local state lagged
	// the ledger at broadcast time.
	TransferResult struct {
		Record    *txstore.Record `json:"record"`
		LedgerID  string          `json:"ledgerId"`
		ApplyGap  uint64          `json:"applyGap"`
		SourceGap uint64          `json:"sourceGap"`
	}
)

func NewPipeline(store TxStore, conn ConnectionSource, decimals int32, tokenType string, log *slog.Logger) *Pipeline {
	if decimals == 0 {
		decimals = DefaultDecimals
	}
	if tokenType == "" {
		tokenType = sdktypes.NativeToken
	}
	return &Pipeline{store: store, conn: conn, decimals: decimals, tokenType: tokenType, log: log}
}

// SubmitTransfer validates the request, durably records it in Initiated state
// and returns without waiting for the network. The broadcast runs in a
// tracked goroutine; its failure is written into the record and observable
// via the record's state, never re-raised.
func (p *Pipeline) SubmitTransfer(ctx context.Context, to, amount string) (*InitiationResult, error) {
	units, err := p.validate(to, amount)
	if err != nil {
		return nil, err
	}
	rec, err := p.store.Create(p.conn.Address(), to, amount)
	if err != nil {
		return nil, err
	}

	p.wg.Add(1)
	go func() {
		// the broadcast outlives the submit call on purpose
		ctx := context.WithoutCancel(ctx)
		defer p.wg.Done()
		if _, err := p.broadcast(ctx, rec, units); err != nil {
			p.log.WarnContext(ctx, "async transfer broadcast failed", "id", rec.ID, "err", err)
		}
	}()

	return &InitiationResult{
		ID:        rec.ID,
		State:     rec.State,
		ToAddress: rec.ToAddress,
		Amount:    rec.Amount,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// SubmitTransferAndWait performs the same validation and broadcast as
// SubmitTransfer but synchronously: it returns once the ledger has assigned a
// ledger identifier, or with an error that has also been written into the
// record. Note that it waits for broadcast, not for ledger settlement.
func (p *Pipeline) SubmitTransferAndWait(ctx context.Context, to, amount string) (*TransferResult, error) {
	units, err := p.validate(to, amount)
	if err != nil {
		return nil, err
	}
	rec, err := p.store.Create(p.conn.Address(), to, amount)
	if err != nil {
		return nil, err
	}
	sent, err := p.broadcast(ctx, rec, units)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	status := p.conn.Status()
	return &TransferResult{
		Record:    sent,
		LedgerID:  sent.LedgerID,
		ApplyGap:  status.ApplyGap,
		SourceGap: status.SourceGap,
	}, nil
}

// Close waits for in-flight async broadcasts to finish writing their outcome.
func (p *Pipeline) Close() {
	p.wg.Wait()
}

func (p *Pipeline) validate(to, amount string) (*uint256.Int, error) {
	if !p.conn.Status().Ready {
		return nil, connection.ErrNotReady
	}
	if to == "" {
		return nil, errors.New("missing destination address")
	}
	units, err := util.ParseAmount(amount, p.decimals)
	if err != nil {
		return nil, err
	}
	if units.IsZero() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", util.ErrInvalidAmount)
	}
	available, pending := p.conn.Balances().Snapshot()
	if available.Lt(units) {
		total := new(uint256.Int).Add(available, pending)
		if !total.Lt(units) {
			return nil, fmt.Errorf("%w: available %s, pending %s, requested %s", ErrFundsPending,
				util.AmountToString(available, p.decimals), util.AmountToString(pending, p.decimals), amount)
		}
		return nil, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds,
			util.AmountToString(available, p.decimals), amount)
	}
	return units, nil
}

// broadcast runs the build, prove and submit legs and moves the record to
// Sent, or to Failed with the underlying error message.
func (p *Pipeline) broadcast(ctx context.Context, rec *txstore.Record, units *uint256.Int) (*txstore.Record, error) {
	ledgerID, err := p.submitToLedger(ctx, rec.ToAddress, units)
	if err != nil {
		if _, markErr := p.store.MarkFailed(rec.ID, err.Error()); markErr != nil {
			p.log.Error("failed to record transfer failure", "id", rec.ID, "err", markErr)
		}
		return nil, err
	}
	sent, err := p.store.MarkSent(rec.ID, ledgerID)
	if err != nil {
		return nil, err
	}
	if sent == nil {
		// the record disappeared under us, nothing left to update
		p.log.Warn("broadcast transfer has no record to update", "id", rec.ID, "ledgerId", ledgerID)
		return rec, nil
	}
	p.log.InfoContext(ctx, "transfer broadcast", "id", sent.ID, "ledgerId", sent.LedgerID, "amount", sent.Amount)
	return sent, nil
}

func (p *Pipeline) submitToLedger(ctx context.Context, to string, units *uint256.Int) (string, error) {
	capability, err := p.conn.Capability()
	if err != nil {
		return "", err
	}
	recipe, err := capability.BuildTransfer(ctx, to, units, p.tokenType)
	if err != nil {
		return "", fmt.Errorf("failed to build transfer: %w", err)
	}
	proven, err := capability.Prove(ctx, recipe)
	if err != nil {
		return "", fmt.Errorf("failed to prove transfer: %w", err)
	}
	ledgerID, err := capability.Submit(ctx, proven)
	if err != nil {
		return "", fmt.Errorf("failed to submit transfer: %w", err)
	}
	return ledgerID, nil
}
