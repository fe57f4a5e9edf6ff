package attendance

import (
	"context"
	"errors"
	"time"

	"rollcall/internal/metrics"
	"rollcall/internal/schedule"
	"rollcall/internal/token"
)

// EntrySource resolves template entries by id. Satisfied by
// schedule.Repository; tests supply an in-memory map.
type EntrySource interface {
	GetEntry(ctx context.Context, id int64) (schedule.Entry, error)
}

// Issuance failure modes, surfaced to the presenter endpoints.
var (
	// ErrNotOwner means the presenter does not own the template entry.
	ErrNotOwner = errors.New("attendance: not the entry owner")
	// ErrNotScheduled means the entry has no occurrence on the claimed date.
	ErrNotScheduled = errors.New("attendance: entry not scheduled on that date")
)

// Result carries the redemption outcome and, on success, the written record.
type Result struct {
	Outcome Outcome
	Record  *Record
}

// Service coordinates token issuance and redemption. It is the single place
// producing the Outcome values consumed by the transport layer.
type Service struct {
	issuer   *token.Issuer
	verifier *token.Verifier
	resolver *schedule.Resolver
	entries  EntrySource
	ledger   Ledger
	clock    func() time.Time
}

// NewService wires the redemption pipeline together.
func NewService(issuer *token.Issuer, verifier *token.Verifier, resolver *schedule.Resolver, entries EntrySource, ledger Ledger) *Service {
	return &Service{
		issuer:   issuer,
		verifier: verifier,
		resolver: resolver,
		entries:  entries,
		ledger:   ledger,
		clock:    time.Now,
	}
}

// WithClock overrides the service's time source, for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// IssueToken mints a rotating presence token for one of the presenter's
// occurrences. The occurrence must belong to the presenter and actually fall
// on the claimed date under the parity rule.
func (s *Service) IssueToken(ctx context.Context, presenterID, occurrenceKey string) (token.Issued, error) {
	entryID, date, err := schedule.ParseOccurrenceKey(occurrenceKey)
	if err != nil {
		return token.Issued{}, err
	}
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return token.Issued{}, err
	}
	if entry.OwnerID != presenterID {
		return token.Issued{}, ErrNotOwner
	}
	if !s.resolver.ActiveOn(entry, date) {
		return token.Issued{}, ErrNotScheduled
	}
	return s.issuer.Issue(occurrenceKey)
}

// Redeem consumes a presence token on behalf of an attendee. Verification
// failures never reach the ledger; a duplicate scan is reported distinctly
// from every rejection so the UI can say "already recorded".
func (s *Service) Redeem(ctx context.Context, attendeeID, attendeeGroup, tokenStr, claimedOccurrenceKey string) (Result, error) {
	if err := s.verifier.Verify(tokenStr, claimedOccurrenceKey, s.clock()); err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return s.done(OutcomeExpired), nil
		case errors.Is(err, token.ErrMismatch):
			return s.done(OutcomeMismatch), nil
		default:
			return s.done(OutcomeBadSignature), nil
		}
	}

	entryID, date, err := schedule.ParseOccurrenceKey(claimedOccurrenceKey)
	if err != nil {
		return s.done(OutcomeNotFound), nil
	}
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, schedule.ErrEntryNotFound) {
			return s.done(OutcomeNotFound), nil
		}
		return Result{}, err
	}
	if entry.GroupName != attendeeGroup {
		return s.done(OutcomeWrongGroup), nil
	}

	rec, recorded, err := s.ledger.RecordIfAbsent(ctx, attendeeID, entryID, date)
	if err != nil {
		return Result{}, err
	}
	if !recorded {
		return s.done(OutcomeDuplicate), nil
	}
	metrics.Redemptions.WithLabelValues(string(OutcomeSuccess)).Inc()
	return Result{Outcome: OutcomeSuccess, Record: &rec}, nil
}

func (s *Service) done(o Outcome) Result {
	metrics.Redemptions.WithLabelValues(string(o)).Inc()
	return Result{Outcome: o}
}
