package sepa

import (
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coreledger/ledgerd/internal/money"
)

// BankResponseConfig is the simulated external-bank behavior for one
// creditor BIC, per spec.md §4.G.
type BankResponseConfig struct {
	Accepts   bool
	ErrorRate float64 // 0..1, probability of a random BankRejection even when Accepts is true
}

// Config parameterizes the business-rule engine, per spec.md §4.G/§6.
type Config struct {
	DailyCap          money.Money
	MaxTransactionCap money.Money
	CutOffHour        int // local hour at/after which EXPRESS is rejected
	SimulateWeekends  bool
	BankResponses     map[string]BankResponseConfig // keyed by creditor BIC

	// BankRatePerSecond throttles simulated bank-response calls per
	// creditor BIC, standing in for the network adapter's own rate
	// limiting; a non-positive value disables throttling.
	BankRatePerSecond float64
	BankRateBurst     int
}

// Validator evaluates SEPA messages against spec.md §4.G's validation and
// business-rule chain, tracking running daily totals and a per-creditor-BIC
// rate limiter for simulated bank-response throttling.
type Validator struct {
	cfg   Config
	clock func() time.Time
	rng   *rand.Rand

	mu          sync.Mutex
	dailyTotals map[string]int64 // "YYYY-MM-DD|currency" -> minor units

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter // creditor BIC -> limiter
}

// NewValidator constructs a Validator. clock defaults to time.Now; pass an
// explicit clock in tests to control cut-off/weekend/daily-cap evaluation.
func NewValidator(cfg Config, clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	if cfg.CutOffHour == 0 {
		cfg.CutOffHour = 15
	}
	return &Validator{
		cfg:         cfg,
		clock:       clock,
		rng:         rand.New(rand.NewSource(1)),
		dailyTotals: make(map[string]int64),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Validate runs the full validation and business-rule chain against msg,
// in the order defined by spec.md §4.G, and returns the resulting Response.
// A forced error (test hook) short-circuits every other check.
func (v *Validator) Validate(msg Message) Response {
	if msg.ForcedError != "" {
		return Response{MessageID: msg.MessageID, State: ResponseRejected, Code: msg.ForcedError}
	}

	if err := ValidateIBAN(msg.Debtor.IBAN); err != nil {
		return v.reject(msg, ErrInvalidIBANCode)
	}
	if err := ValidateIBAN(msg.Creditor.IBAN); err != nil {
		return v.reject(msg, ErrInvalidIBANCode)
	}

	if !supportedCurrency(msg.Amount.Currency()) {
		return v.reject(msg, ErrCurrencyNotSupported)
	}

	if !msg.Amount.IsPositive() {
		return v.reject(msg, ErrAmountLimitExceeded)
	}
	if v.cfg.MaxTransactionCap.IsPositive() {
		if cmp, err := msg.Amount.Cmp(v.cfg.MaxTransactionCap); err == nil && cmp > 0 {
			return v.reject(msg, ErrAmountLimitExceeded)
		}
	}

	now := v.clock()

	if msg.Urgency == UrgencyExpress && now.Hour() >= v.cfg.CutOffHour {
		return v.reject(msg, ErrCutOffTimeExceeded)
	}

	if msg.Urgency != UrgencyInstant && v.cfg.SimulateWeekends && isWeekend(now) {
		return v.reject(msg, ErrHolidayProcessing)
	}

	if exceeded := v.wouldExceedDailyCap(msg, now); exceeded {
		return v.reject(msg, ErrAmountLimitExceeded)
	}

	if v.cfg.BankRatePerSecond > 0 && !v.limiterFor(msg.Creditor.BIC).Allow() {
		return v.reject(msg, ErrNetworkTimeout)
	}

	if bankResp, ok := v.cfg.BankResponses[msg.Creditor.BIC]; ok {
		if !bankResp.Accepts || v.rng.Float64() < bankResp.ErrorRate {
			return v.reject(msg, ErrBankRejection)
		}
	}

	v.recordDailyCap(msg, now)
	return Response{MessageID: msg.MessageID, State: ResponseAccepted}
}

func (v *Validator) reject(msg Message, code ErrorCode) Response {
	return Response{MessageID: msg.MessageID, State: ResponseRejected, Code: code}
}

func supportedCurrency(c money.Currency) bool {
	switch c {
	case money.EUR, money.NOK, money.SEK, money.DKK:
		return true
	default:
		return false
	}
}

func isWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}

// wouldExceedDailyCap reports whether recording msg's amount against the
// running per-UTC-date, per-currency total would push it over the
// configured daily cap, without mutating the total: only messages that
// clear every later rejection check are actually recorded, via
// recordDailyCap, so the cap tracks the sum of accepted amounts rather
// than amounts merely attempted.
func (v *Validator) wouldExceedDailyCap(msg Message, now time.Time) bool {
	if !v.cfg.DailyCap.IsPositive() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dailyTotals[dailyCapKey(msg, now)]+msg.Amount.Minor() > v.cfg.DailyCap.Minor()
}

// recordDailyCap adds msg's amount to the running per-UTC-date,
// per-currency total. Called only once a message has passed every
// rejection check, so a later BankRejection or NetworkTimeout never
// counts against the cap.
func (v *Validator) recordDailyCap(msg Message, now time.Time) {
	if !v.cfg.DailyCap.IsPositive() {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dailyTotals[dailyCapKey(msg, now)] += msg.Amount.Minor()
}

func dailyCapKey(msg Message, now time.Time) string {
	return now.UTC().Format("2006-01-02") + "|" + string(msg.Amount.Currency())
}

func (v *Validator) limiterFor(bic string) *rate.Limiter {
	v.limiterMu.Lock()
	defer v.limiterMu.Unlock()
	l, ok := v.limiters[bic]
	if !ok {
		burst := v.cfg.BankRateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(v.cfg.BankRatePerSecond), burst)
		v.limiters[bic] = l
	}
	return l
}
