// Package scheduler runs the periodic loan-payment-processing cycle,
// grounded on the teacher's ProjectionWorker: a ticker-driven background
// loop with a stop channel, a done channel for graceful shutdown, and a
// directly callable single-cycle entry point for manual/test invocation.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/store"
)

// DepositAccountPolicy selects which of a customer's deposit accounts
// funds a scheduled loan payment, resolving the open question noted in
// spec.md §9.
type DepositAccountPolicy string

const (
	// PolicyOldestDepositInCurrency picks the customer's oldest-created
	// DEPOSIT account metadata row matching the plan's currency. Default,
	// since it requires no schema migration for existing plans.
	PolicyOldestDepositInCurrency DepositAccountPolicy = "oldest-deposit-in-currency"

	// PolicyPrimaryAccountID consults the plan's PrimaryAccountID field.
	PolicyPrimaryAccountID DepositAccountPolicy = "primary-account-id"
)

// ResultReason classifies the outcome of one plan's payment attempt within
// a cycle.
type ResultReason string

const (
	ReasonSuccess          ResultReason = "SUCCESS"
	ReasonNoDepositAccount ResultReason = "NoDepositAccount"
	ReasonLedgerFailure    ResultReason = "LedgerFailure"
)

// PaymentProcessingResult is the per-plan outcome of one scheduler cycle,
// per spec.md §4.F.
type PaymentProcessingResult struct {
	LoanAccountID ledgerid.AccountID
	Reason        ResultReason
	Err           error
	TransferID    ledgerid.TransferID
}

// CycleResult aggregates one cycle's per-plan results.
type CycleResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []PaymentProcessingResult
	Succeeded  int
	Failed     int
}

// Scheduler processes due payment plans on a configurable ticker interval,
// never overlapping cycles.
type Scheduler struct {
	engine   *ledger.Engine
	plans    store.PaymentPlanStore
	accounts store.AccountMetadataStore
	logger   zerolog.Logger

	interval time.Duration
	policy   DepositAccountPolicy
	clock    func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	running bool
}

// Config configures a Scheduler, mirroring the teacher's
// ProjectionWorkerConfig shape.
type Config struct {
	Interval time.Duration
	Policy   DepositAccountPolicy
}

// DefaultConfig returns the spec.md §4.F defaults: a monthly wake and the
// oldest-deposit-in-currency account-selection policy.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * 24 * time.Hour,
		Policy:   PolicyOldestDepositInCurrency,
	}
}

// New constructs a Scheduler bound to the ledger engine and the plan/account
// halves of the metadata store.
func New(engine *ledger.Engine, plans store.PaymentPlanStore, accounts store.AccountMetadataStore, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Policy == "" {
		cfg.Policy = DefaultConfig().Policy
	}
	return &Scheduler{
		engine:   engine,
		plans:    plans,
		accounts: accounts,
		logger:   logger.With().Str("component", "payment_scheduler").Logger(),
		interval: cfg.Interval,
		policy:   cfg.Policy,
		clock:    time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background ticker loop. Cycles never overlap: the next
// tick is only honored once the running cycle has returned.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Str("policy", string(s.policy)).Msg("starting payment scheduler")
	go s.run(ctx)
}

// Stop cancels the next tick and awaits completion of any in-flight cycle,
// per spec.md §4.F/§5.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info().Msg("stopping payment scheduler")
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info().Msg("payment scheduler stopped")
}

// IsRunning reports whether the background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-s.stopCh:
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle processes every plan due on or before today in a single pass,
// exported so callers (and tests) can trigger a cycle directly rather than
// waiting on the ticker, mirroring the teacher's SyncWorkspace.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	started := s.clock()
	cycle := CycleResult{StartedAt: started}

	y, m, d := started.Date()
	endOfToday := time.Date(y, m, d+1, 0, 0, 0, 0, started.Location()).Add(-time.Nanosecond)
	due, err := s.plans.ListPlansDueOnOrBefore(ctx, endOfToday)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due payment plans")
		cycle.FinishedAt = s.clock()
		return cycle
	}

	for _, plan := range due {
		select {
		case <-ctx.Done():
			cycle.FinishedAt = s.clock()
			return cycle
		default:
		}

		result := s.processPlan(ctx, plan)
		cycle.Results = append(cycle.Results, result)
		if result.Reason == ReasonSuccess {
			cycle.Succeeded++
		} else {
			cycle.Failed++
		}
	}

	cycle.FinishedAt = s.clock()
	s.logger.Info().
		Int("due", len(due)).
		Int("succeeded", cycle.Succeeded).
		Int("failed", cycle.Failed).
		Dur("elapsed", cycle.FinishedAt.Sub(cycle.StartedAt)).
		Msg("payment cycle complete")
	return cycle
}

func (s *Scheduler) processPlan(ctx context.Context, plan store.PaymentPlan) PaymentProcessingResult {
	depositID, ok := s.resolveDepositAccount(ctx, plan)
	if !ok {
		// Capitalized to match the literal substring spec.md §8 scenario 3
		// requires of this result's error text.
		err := fmt.Errorf("No deposit account found for customer %s in currency %s", plan.CustomerID, plan.PaymentAmount.Currency())
		return PaymentProcessingResult{LoanAccountID: plan.AccountID, Reason: ReasonNoDepositAccount, Err: err}
	}

	results := s.engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  depositID,
		CreditAccountID: plan.AccountID,
		Amount:          plan.PaymentAmount,
		Operation:       ledger.OpSinglePhase,
		Kind:            ledger.KindLoanPayment,
	}})
	if results[0].Err != nil {
		return PaymentProcessingResult{LoanAccountID: plan.AccountID, Reason: ReasonLedgerFailure, Err: results[0].Err}
	}

	if err := s.plans.DecrementRemaining(ctx, plan.AccountID); err != nil {
		return PaymentProcessingResult{LoanAccountID: plan.AccountID, Reason: ReasonLedgerFailure, Err: err, TransferID: results[0].ID}
	}

	remaining := plan.RemainingPayments - 1
	if remaining > 0 {
		next := advance(plan.NextPaymentDate, plan.PaymentFrequency)
		if err := s.plans.SetNextPaymentDate(ctx, plan.AccountID, next); err != nil {
			return PaymentProcessingResult{LoanAccountID: plan.AccountID, Reason: ReasonLedgerFailure, Err: err, TransferID: results[0].ID}
		}
	}
	// remaining == 0: next_payment_date is left untouched; the plan is
	// terminal per spec.md §3, signaled by RemainingPayments reaching zero.

	return PaymentProcessingResult{LoanAccountID: plan.AccountID, Reason: ReasonSuccess, TransferID: results[0].ID}
}

// resolveDepositAccount applies the configured policy to find the deposit
// account that funds a plan's scheduled payment.
func (s *Scheduler) resolveDepositAccount(ctx context.Context, plan store.PaymentPlan) (ledgerid.AccountID, bool) {
	switch s.policy {
	case PolicyPrimaryAccountID:
		if plan.PrimaryAccountID.IsZero() {
			return ledgerid.AccountID{}, false
		}
		return plan.PrimaryAccountID, true

	default: // PolicyOldestDepositInCurrency
		candidates, err := s.accounts.ListByCustomerAndType(ctx, plan.CustomerID, "DEPOSIT")
		if err != nil || len(candidates) == 0 {
			return ledgerid.AccountID{}, false
		}
		var oldest *store.AccountMetadata
		for i := range candidates {
			c := &candidates[i]
			if c.Currency != plan.PaymentAmount.Currency() {
				continue
			}
			if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
				oldest = c
			}
		}
		if oldest == nil {
			return ledgerid.AccountID{}, false
		}
		return oldest.AccountID, true
	}
}

// advance computes the next scheduled payment date for a plan's frequency.
// MONTHLY advances by calendar month rather than a fixed day count so that
// month-end dates behave the way a banking calendar expects.
func advance(from time.Time, freq store.PaymentFrequency) time.Time {
	switch freq {
	case store.FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case store.FrequencyBiWeekly:
		return from.AddDate(0, 0, 14)
	default:
		return from.AddDate(0, 1, 0)
	}
}
