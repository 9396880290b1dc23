package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	sdktypes "github.com/nightvault/agent-wallet/client/types"
)

const (
	DefaultMaxRecoveryAttempts = 5
	DefaultRecoveryBaseDelay   = 5 * time.Second
	DefaultRecoveryMaxDelay    = 60 * time.Second
	DefaultBackupMinInterval   = 5 * time.Second
)

// ErrNotReady indicates that the wallet connection is not usable: it is still
// connecting, recovering, or recovery attempts have been exhausted.
var ErrNotReady = errors.New("wallet connection not ready")

type (
	// Status is a point-in-time snapshot of the connection state. Ready is
	// true only when the capability is fully synced and operable; both gaps
	// zero implies fully synced.
	Status struct {
		Ready            bool   `json:"ready" yaml:"ready"`
		Recovering       bool   `json:"recovering" yaml:"recovering"`
		RecoveryAttempts int    `json:"recoveryAttempts" yaml:"recoveryAttempts"`
		ApplyGap         uint64 `json:"applyGap" yaml:"applyGap"`
		SourceGap        uint64 `json:"sourceGap" yaml:"sourceGap"`
	}

	Config struct {
		MaxRecoveryAttempts int
		RecoveryBaseDelay   time.Duration
		RecoveryMaxDelay    time.Duration
		TokenType           string
	}

	// Supervisor owns the wallet capability connection: it consumes the state
	// feed, maintains connection state and balances, and rebuilds the
	// capability with bounded backed-off retries when the feed fails. All
	// other components read its snapshots, never the capability state
	// directly.
	Supervisor struct {
		factory sdktypes.CapabilityFactory
		capCfg  sdktypes.CapabilityConfig
		cfg     Config

		balances *Balances
		backup   *StateBackup
		log      *slog.Logger

		mu         sync.RWMutex
		capability sdktypes.WalletCapability
		status     Status
		exhausted  bool
		address    string
		history    []sdktypes.HistoryEntry

		recovering chan struct{} // holds a token while a recovery is in flight
		closed     chan struct{}
		closeOnce  sync.Once
		wg         sync.WaitGroup
	}
)

func NewSupervisor(factory sdktypes.CapabilityFactory, capCfg sdktypes.CapabilityConfig, cfg Config, backup *StateBackup, log *slog.Logger) *Supervisor {
	if cfg.MaxRecoveryAttempts == 0 {
		cfg.MaxRecoveryAttempts = DefaultMaxRecoveryAttempts
	}
	if cfg.RecoveryBaseDelay == 0 {
		cfg.RecoveryBaseDelay = DefaultRecoveryBaseDelay
	}
	if cfg.RecoveryMaxDelay == 0 {
		cfg.RecoveryMaxDelay = DefaultRecoveryMaxDelay
	}
	if cfg.TokenType == "" {
		cfg.TokenType = sdktypes.NativeToken
	}
	return &Supervisor{
		factory:    factory,
		capCfg:     capCfg,
		cfg:        cfg,
		balances:   NewBalances(),
		backup:     backup,
		log:        log,
		recovering: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
}

// Start builds the initial capability and begins consuming its state feed.
// Readiness is reached asynchronously, on the first fully-synced state event.
func (s *Supervisor) Start(ctx context.Context) error {
	capability, err := s.factory(ctx, s.capCfg)
	if err != nil {
		return fmt.Errorf("failed to build wallet capability: %w", err)
	}
	s.mu.Lock()
	s.capability = capability
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consumeFeed(ctx, capability.Subscribe())
	return nil
}

// Status returns a snapshot of the connection state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Balances returns the balance tracker fed by the state feed.
func (s *Supervisor) Balances() *Balances {
	return s.balances
}

// Address returns the wallet address reported by the state feed, empty until
// the first state event arrives.
func (s *Supervisor) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// History returns the latest transaction history snapshot from the state
// feed. It is the local view the reconciler matches ledger identifiers
// against; no network call is made.
func (s *Supervisor) History() []sdktypes.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]sdktypes.HistoryEntry, len(s.history))
	copy(history, s.history)
	return history
}

// Capability returns the current wallet capability, or ErrNotReady when the
// connection is not usable.
func (s *Supervisor) Capability() (sdktypes.WalletCapability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.status.Ready || s.capability == nil {
		return nil, ErrNotReady
	}
	return s.capability, nil
}

// Recover requests a manual recovery. It resets the attempt counter, so it is
// also the operator's way out of the exhausted state.
func (s *Supervisor) Recover(ctx context.Context) {
	s.mu.Lock()
	s.exhausted = false
	s.status.RecoveryAttempts = 0
	s.mu.Unlock()
	s.triggerRecovery(ctx, "manual recovery requested")
}

// Close stops the feed consumer and any in-flight recovery, writes a final
// best-effort state backup and tears down the capability. Teardown errors are
// logged and swallowed, shutdown never fails.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.wg.Wait()

	s.mu.Lock()
	capability := s.capability
	s.capability = nil
	s.status.Ready = false
	s.mu.Unlock()

	if capability != nil {
		if err := s.backup.Save(context.Background(), s.capCfg.FilenameHint, capability, false); err != nil {
			s.log.Warn("failed to write final wallet state backup", "err", err)
		}
		if err := capability.Close(); err != nil {
			s.log.Warn("failed to close wallet capability", "err", err)
		}
	}
}

// consumeFeed processes state events strictly in arrival order; every event
// mutates shared balances and connection state, so there is exactly one
// consumer goroutine at any time. The consumer's lifetime is owned by Close,
// not by the Start context: stopping on ctx cancellation would leave Ready
// set while nothing consumes the feed.
func (s *Supervisor) consumeFeed(ctx context.Context, events <-chan sdktypes.StateEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.closed:
			return
		case event, ok := <-events:
			if !ok {
				s.triggerRecovery(ctx, "state feed completed unexpectedly")
				return
			}
			if event.Err != nil {
				s.triggerRecovery(ctx, fmt.Sprintf("state feed error: %v", event.Err))
				return
			}
			if err := s.handleEvent(ctx, event.State); err != nil {
				s.triggerRecovery(ctx, fmt.Sprintf("failed to process state update: %v", err))
				return
			}
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, state *sdktypes.WalletState) error {
	if state == nil {
		return errors.New("nil wallet state")
	}
	s.balances.Set(state.Balance(s.cfg.TokenType), state.PendingTotal(s.cfg.TokenType))

	s.mu.Lock()
	s.address = state.Address
	s.history = state.History
	s.status.ApplyGap = state.SyncProgress.ApplyGap
	s.status.SourceGap = state.SyncProgress.SourceGap
	wasReady := s.status.Ready
	s.status.Ready = state.SyncProgress.Synced
	if state.SyncProgress.Synced {
		s.status.RecoveryAttempts = 0
	}
	capability := s.capability
	s.mu.Unlock()

	if state.SyncProgress.Synced && !wasReady {
		s.log.InfoContext(ctx, "wallet fully synced",
			"address", state.Address, "applyGap", state.SyncProgress.ApplyGap, "sourceGap", state.SyncProgress.SourceGap)
		if err := s.backup.Save(ctx, s.capCfg.FilenameHint, capability, true); err != nil {
			s.log.WarnContext(ctx, "failed to write wallet state backup", "err", err)
		}
		return nil
	}
	if written, err := s.backup.MaybeSave(ctx, s.capCfg.FilenameHint, capability, state.SyncProgress.Synced); err != nil {
		s.log.WarnContext(ctx, "failed to write wallet state backup", "err", err)
	} else if written {
		s.log.DebugContext(ctx, "wallet state backup written",
			"applyGap", state.SyncProgress.ApplyGap, "sourceGap", state.SyncProgress.SourceGap)
	}
	return nil
}

// triggerRecovery starts the recovery loop unless one is already in flight.
// At most one recovery runs at any time.
func (s *Supervisor) triggerRecovery(ctx context.Context, reason string) {
	select {
	case <-s.closed:
		return
	default:
	}
	s.mu.RLock()
	exhausted := s.exhausted
	s.mu.RUnlock()
	if exhausted {
		s.log.Warn("recovery attempts exhausted, ignoring recovery request", "reason", reason)
		return
	}
	select {
	case s.recovering <- struct{}{}:
	default:
		// a recovery is already in flight
		return
	}
	s.log.WarnContext(ctx, "wallet connection lost, starting recovery", "reason", reason)
	s.wg.Add(1)
	go s.recoverLoop(ctx)
}

// recoverLoop rebuilds the capability with exponential backoff. It is an
// explicit loop with a bounded attempt counter; it never lets an error escape,
// every failure is logged and folded into the next attempt.
func (s *Supervisor) recoverLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() { <-s.recovering }()

	for {
		s.mu.Lock()
		s.status.RecoveryAttempts++
		attempt := s.status.RecoveryAttempts
		if attempt > s.cfg.MaxRecoveryAttempts {
			s.status.RecoveryAttempts = s.cfg.MaxRecoveryAttempts
			s.status.Recovering = false
			s.exhausted = true
			s.mu.Unlock()
			s.log.Error("wallet recovery attempts exhausted, manual intervention required",
				"attempts", s.cfg.MaxRecoveryAttempts)
			return
		}
		s.status.Recovering = true
		s.status.Ready = false
		s.status.ApplyGap = 0
		s.status.SourceGap = 0
		oldCapability := s.capability
		s.capability = nil
		s.mu.Unlock()

		if oldCapability != nil {
			if err := s.backup.Save(ctx, s.capCfg.FilenameHint, oldCapability, false); err != nil {
				s.log.WarnContext(ctx, "failed to back up wallet state before teardown", "err", err)
			}
			if err := oldCapability.Close(); err != nil {
				s.log.WarnContext(ctx, "failed to close wallet capability", "err", err)
			}
		}

		delay := backoffDelay(attempt, s.cfg.RecoveryBaseDelay, s.cfg.RecoveryMaxDelay)
		s.log.InfoContext(ctx, "waiting before wallet rebuild", "attempt", attempt, "delay", delay)
		select {
		case <-s.closed:
			return
		case <-time.After(delay):
		}

		capability, err := s.factory(ctx, s.capCfg)
		if err != nil {
			s.log.WarnContext(ctx, "wallet rebuild failed", "attempt", attempt, "err", err)
			continue
		}

		s.mu.Lock()
		s.capability = capability
		s.status.Recovering = false
		s.mu.Unlock()

		s.log.InfoContext(ctx, "wallet capability rebuilt, waiting for sync", "attempt", attempt)
		s.wg.Add(1)
		go s.consumeFeed(ctx, capability.Subscribe())
		return
	}
}

// backoffDelay grows the wait between rebuild attempts by factor 1.5 per
// attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(base) * math.Pow(1.5, float64(attempt-1)))
	if delay > max || delay < 0 {
		return max
	}
	return delay
}
