package capability

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
)

type (
	// Mock implements sdktypes.WalletCapability for tests. State events are
	// pushed through SendState/SendFeedError/CompleteFeed.
	Mock struct {
		mu              sync.Mutex
		events          chan sdktypes.StateEvent
		ledgerID        string
		buildErr        error
		proveErr        error
		submitErr       error
		serializeErr    error
		RecordedSubmits []*sdktypes.ProvenTransfer
		Closed          bool
	}

	Options struct {
		LedgerID     string
		BuildErr     error
		ProveErr     error
		SubmitErr    error
		SerializeErr error
	}

	Option func(*Options)
)

func NewMock(opts ...Option) *Mock {
	options := &Options{LedgerID: "ledger-id-1"}
	for _, option := range opts {
		option(options)
	}
	return &Mock{
		events:       make(chan sdktypes.StateEvent, 32),
		ledgerID:     options.LedgerID,
		buildErr:     options.BuildErr,
		proveErr:     options.ProveErr,
		submitErr:    options.SubmitErr,
		serializeErr: options.SerializeErr,
	}
}

func WithLedgerID(id string) Option {
	return func(o *Options) {
		o.LedgerID = id
	}
}

func WithBuildError(err error) Option {
	return func(o *Options) {
		o.BuildErr = err
	}
}

func WithProveError(err error) Option {
	return func(o *Options) {
		o.ProveErr = err
	}
}

func WithSubmitError(err error) Option {
	return func(o *Options) {
		o.SubmitErr = err
	}
}

func WithSerializeError(err error) Option {
	return func(o *Options) {
		o.SerializeErr = err
	}
}

func (m *Mock) Subscribe() <-chan sdktypes.StateEvent {
	return m.events
}

func (m *Mock) BuildTransfer(_ context.Context, to string, amount *uint256.Int, tokenType string) (*sdktypes.TransferRecipe, error) {
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return &sdktypes.TransferRecipe{To: to, Amount: amount.Clone(), TokenType: tokenType}, nil
}

func (m *Mock) Prove(_ context.Context, recipe *sdktypes.TransferRecipe) (*sdktypes.ProvenTransfer, error) {
	if m.proveErr != nil {
		return nil, m.proveErr
	}
	return &sdktypes.ProvenTransfer{Recipe: recipe, Proof: []byte("proof")}, nil
}

func (m *Mock) Submit(_ context.Context, tx *sdktypes.ProvenTransfer) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.mu.Lock()
	m.RecordedSubmits = append(m.RecordedSubmits, tx)
	m.mu.Unlock()
	return m.ledgerID, nil
}

func (m *Mock) SerializeState(_ context.Context) ([]byte, error) {
	if m.serializeErr != nil {
		return nil, m.serializeErr
	}
	return []byte("serialized-state"), nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// SendState pushes a state event to the feed.
func (m *Mock) SendState(state *sdktypes.WalletState) {
	m.events <- sdktypes.StateEvent{State: state}
}

// SendFeedError pushes an error event to the feed.
func (m *Mock) SendFeedError(err error) {
	m.events <- sdktypes.StateEvent{Err: err}
}

// CompleteFeed closes the feed channel, i.e. the feed completes.
func (m *Mock) CompleteFeed() {
	close(m.events)
}

// SubmitCount returns the number of submitted transfers.
func (m *Mock) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedSubmits)
}

// SyncedState builds a fully synced wallet state with the given native token
// balances.
func SyncedState(available, pending uint64, history ...sdktypes.HistoryEntry) *sdktypes.WalletState {
	state := &sdktypes.WalletState{
		Address: "addr-own",
		Balances: map[string]*uint256.Int{
			sdktypes.NativeToken: uint256.NewInt(available),
		},
		SyncProgress: sdktypes.SyncProgress{Synced: true},
		History:      history,
	}
	if pending > 0 {
		state.PendingCoins = []sdktypes.PendingCoin{
			{TokenType: sdktypes.NativeToken, Value: uint256.NewInt(pending)},
		}
	}
	return state
}

// SyncingState builds a not yet synced wallet state with the given gaps.
func SyncingState(applyGap, sourceGap uint64) *sdktypes.WalletState {
	return &sdktypes.WalletState{
		Address:      "addr-own",
		Balances:     map[string]*uint256.Int{},
		SyncProgress: sdktypes.SyncProgress{ApplyGap: applyGap, SourceGap: sourceGap},
	}
}
