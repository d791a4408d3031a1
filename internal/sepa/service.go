package sepa

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/ledgerid"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/store"
)

// SuspenseAccounts resolves the currency-specific suspense account a SEPA
// message posts against, per spec.md §2 ("SEPA messages flow through the
// adapter and, on acceptance, into the ledger as paired transfers against
// currency-specific suspense accounts").
type SuspenseAccounts interface {
	SuspenseAccountID(c money.Currency) ledgerid.AccountID
}

// Service wires the validation chain, the ledger engine, and the
// settlement timer wheel to the metadata store's external-transaction
// half, per spec.md §4.G.
type Service struct {
	validator    *Validator
	wheel        *TimerWheel
	transactions store.ExternalTransactionStore
	engine       *ledger.Engine
	suspense     SuspenseAccounts
	logger       zerolog.Logger
	clock        func() time.Time
}

// NewService constructs a Service. logger is scoped with a "sepa" component
// field, matching the teacher's per-worker logger convention.
func NewService(validator *Validator, wheel *TimerWheel, transactions store.ExternalTransactionStore, engine *ledger.Engine, suspense SuspenseAccounts, logger zerolog.Logger) *Service {
	return &Service{
		validator:    validator,
		wheel:        wheel,
		transactions: transactions,
		engine:       engine,
		suspense:     suspense,
		logger:       logger.With().Str("component", "sepa").Logger(),
		clock:        time.Now,
	}
}

// Accept validates msg and, if accepted, posts a two-phase pending transfer
// against the currency's suspense account, persists a PENDING external
// transaction recording that transfer's id, and schedules the message's
// settlement timer, per spec.md §2/§4.G. An OUTGOING message debits the
// customer account and credits the suspense account (funds leaving for the
// external bank); an INCOMING message debits suspense and credits the
// customer account (funds arriving from the external bank).
func (s *Service) Accept(ctx context.Context, msg Message, accountID ledgerid.AccountID) (Response, error) {
	resp := s.validator.Validate(msg)
	if resp.State != ResponseAccepted {
		s.logger.Info().Str("message_id", msg.MessageID).Str("code", string(resp.Code)).Msg("sepa message rejected")
		return resp, nil
	}

	suspenseID := s.suspense.SuspenseAccountID(msg.Amount.Currency())
	debitID, creditID, kind := accountID, suspenseID, ledger.KindSepaOutbound
	if msg.Direction == DirectionIncoming {
		debitID, creditID, kind = suspenseID, accountID, ledger.KindSepaInbound
	}

	transferResults := s.engine.CreateTransfers([]ledger.CreateTransferRequest{{
		DebitAccountID:  debitID,
		CreditAccountID: creditID,
		Amount:          msg.Amount,
		Operation:       ledger.OpPending,
		Kind:            kind,
		UserTag:         msg.MessageID,
	}})
	if err := transferResults[0].Err; err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("sepa message failed to post against the ledger")
		return resp, fmt.Errorf("sepa: post pending transfer: %w", err)
	}
	transferID := transferResults[0].ID

	now := s.clock()
	tx := store.ExternalTransaction{
		ExternalID:      msg.MessageID,
		AccountID:       accountID,
		TransferID:      transferID,
		TransactionType: string(msg.Direction),
		Amount:          msg.Amount,
		Status:          store.ExternalPending,
		BankInfo: map[string]string{
			"debtor_iban":   msg.Debtor.IBAN,
			"creditor_iban": msg.Creditor.IBAN,
			"creditor_bic":  msg.Creditor.BIC,
			"urgency":       string(msg.Urgency),
		},
		Description: msg.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transactions.InsertExternalTransaction(ctx, tx); err != nil {
		return resp, fmt.Errorf("sepa: persist external transaction: %w", err)
	}

	settleAt := EstimatedSettlementTime(now, msg.Urgency)
	s.wheel.Schedule(msg.MessageID, settleAt, func(messageID string) error {
		return s.Settle(context.Background(), messageID)
	})

	s.logger.Info().Str("message_id", msg.MessageID).Time("estimated_settlement", settleAt).Msg("sepa message accepted")
	return resp, nil
}

// Settle transitions an accepted message's external transaction from
// PENDING to SETTLED, posting its pending ledger transfer. It is invoked
// by the timer wheel when a message's estimated settlement time arrives,
// and is exported so tests and manual operational tooling can trigger it
// directly. If posting the transfer fails, the pending transfer is voided
// and the transaction is marked FAILED instead; if the SETTLED status update
// fails after a successful post, the transaction is marked FAILED and the
// posted transfer stands, per spec.md §4.G.
func (s *Service) Settle(ctx context.Context, messageID string) error {
	tx, err := s.transactions.GetExternalTransactionByID(ctx, messageID)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID).Msg("sepa settlement failed, external transaction not found")
		return err
	}

	postResults := s.engine.CreateTransfers([]ledger.CreateTransferRequest{{
		Operation: ledger.OpPost,
		PendingID: tx.TransferID,
	}})
	if err := postResults[0].Err; err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID).Msg("sepa settlement failed to post ledger transfer, voiding and marking FAILED")
		s.engine.CreateTransfers([]ledger.CreateTransferRequest{{Operation: ledger.OpVoid, PendingID: tx.TransferID}})
		_ = s.transactions.UpdateExternalTransactionStatus(ctx, messageID, store.ExternalFailed)
		return err
	}

	if err := s.transactions.UpdateExternalTransactionStatus(ctx, messageID, store.ExternalSettled); err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID).Msg("sepa settlement failed, marking transaction FAILED")
		_ = s.transactions.UpdateExternalTransactionStatus(ctx, messageID, store.ExternalFailed)
		return err
	}
	s.logger.Info().Str("message_id", messageID).Msg("sepa transaction settled")
	return nil
}

// Cancel stops a message's pending settlement timer without touching its
// stored transaction state, for administrative/operational use.
func (s *Service) Cancel(messageID string) bool {
	return s.wheel.Cancel(messageID)
}

// Close releases the underlying timer wheel's resources at shutdown.
func (s *Service) Close() {
	s.wheel.Close()
}
