package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	pkgdb "github.com/smallbiznis/attendly/pkg/db"
	"go.uber.org/zap"
)

// Reserve implements the reservation protocol. Mutual exclusion comes
// entirely from the storage layer: the compare-and-swap on
// checkout_key_revision and the unique pending-per-attendance index.
// A losing racer converges on the winner's reservation instead of
// erroring, as long as the amounts agree.
func (s *Service) Reserve(ctx context.Context, req paymentdomain.ReserveRequest) (*paymentdomain.Reservation, error) {
	if err := s.validateReserve(ctx, &req); err != nil {
		return nil, err
	}

	terminal, err := s.repo.FindTerminalByAttendance(ctx, s.db, req.AttendanceID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if len(terminal) > 0 {
		return nil, paymentdomain.ErrPaymentAlreadyExists
	}

	open, err := s.repo.FindOpenByAttendance(ctx, s.db, req.AttendanceID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}

	if pending := pickPending(open); pending != nil {
		return s.reusePending(ctx, pending, req)
	}

	// No pending row: failed rows are never revived, a fresh attempt
	// always gets a fresh row.
	return s.createPayment(ctx, req)
}

func (s *Service) validateReserve(ctx context.Context, req *paymentdomain.ReserveRequest) error {
	if req.AttendanceID == 0 {
		return paymentdomain.ErrInvalidAttendance
	}
	if req.Amount <= 0 {
		return paymentdomain.ErrInvalidAmount
	}
	if req.Method == "" {
		req.Method = paymentdomain.MethodProcessor
	}
	if !req.Method.Valid() {
		return paymentdomain.ErrInvalidMethod
	}

	attendance, err := s.attendanceRepo.FindByID(ctx, s.db, req.AttendanceID)
	if err != nil {
		return paymentdomain.DatabaseError(err)
	}
	if attendance == nil {
		return paymentdomain.ErrAttendanceNotFound
	}
	return nil
}

func pickPending(open []paymentdomain.Payment) *paymentdomain.Payment {
	for i := range open {
		if open[i].Status == paymentdomain.StatusPending {
			return &open[i]
		}
	}
	return nil
}

// reusePending revises the existing pending row in place: fresh key,
// incremented revision, guarded by the revision we read.
func (s *Service) reusePending(ctx context.Context, pending *paymentdomain.Payment, req paymentdomain.ReserveRequest) (*paymentdomain.Reservation, error) {
	// Amount equality is the sole tie-breaker; the protocol never hands
	// out a key for a mismatched amount.
	if pending.Amount != req.Amount {
		s.recordConflict(ctx, "amount_mismatch")
		return nil, paymentdomain.ErrConcurrentUpdate
	}

	newKey := paymentdomain.CheckoutIdempotencyKey(pending.ID.String(), s.newAttemptToken(), pending.Amount)
	nextRevision := pending.CheckoutKeyRevision + 1

	claimed, err := s.repo.ClaimCheckoutKey(ctx, s.db, paymentdomain.CheckoutKeyClaim{
		PaymentID:        pending.ID,
		ExpectedRevision: pending.CheckoutKeyRevision,
		NewKey:           newKey,
		NewRevision:      nextRevision,
		Now:              time.Now().UTC(),
	})
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if claimed {
		s.recordReservation(ctx, "reused")
		return &paymentdomain.Reservation{
			PaymentID:      pending.ID,
			IdempotencyKey: newKey,
			Revision:       nextRevision,
			Amount:         pending.Amount,
		}, nil
	}

	return s.adoptWinner(ctx, pending.ID, req, newKey, nextRevision)
}

// adoptWinner handles a lost compare-and-swap: re-read the row and
// converge on whoever won, failing only on genuine conflicts.
func (s *Service) adoptWinner(ctx context.Context, paymentID snowflake.ID, req paymentdomain.ReserveRequest, fallbackKey string, fallbackRevision int64) (*paymentdomain.Reservation, error) {
	current, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}

	switch {
	case current == nil:
		// Row vanished between the claim and the re-read. Hand back the
		// key we minted so the caller is not stranded.
		s.log.Warn("pending payment vanished after lost claim, falling back to fresh key",
			zap.Int64("payment_id", paymentID.Int64()),
		)
		return &paymentdomain.Reservation{
			PaymentID:      paymentID,
			IdempotencyKey: fallbackKey,
			Revision:       fallbackRevision,
			Amount:         req.Amount,
		}, nil

	case current.Status.IsTerminal():
		return nil, paymentdomain.ErrPaymentAlreadyExists

	case current.Status == paymentdomain.StatusPending && current.CheckoutIdempotencyKey != "":
		if current.Amount != req.Amount {
			s.recordConflict(ctx, "amount_mismatch")
			return nil, paymentdomain.ErrConcurrentUpdate
		}
		s.recordReservation(ctx, "adopted")
		return &paymentdomain.Reservation{
			PaymentID:      current.ID,
			IdempotencyKey: current.CheckoutIdempotencyKey,
			Revision:       current.CheckoutKeyRevision,
			Amount:         current.Amount,
		}, nil

	default:
		s.log.Warn("pending payment in unclassifiable state after lost claim, falling back to fresh key",
			zap.Int64("payment_id", paymentID.Int64()),
			zap.String("status", string(current.Status)),
		)
		return &paymentdomain.Reservation{
			PaymentID:      paymentID,
			IdempotencyKey: fallbackKey,
			Revision:       fallbackRevision,
			Amount:         req.Amount,
		}, nil
	}
}

// createPayment inserts a fresh pending row at revision zero. A
// uniqueness violation means another caller created the row first; the
// conflict is recovered, never dropped.
func (s *Service) createPayment(ctx context.Context, req paymentdomain.ReserveRequest) (*paymentdomain.Reservation, error) {
	now := time.Now().UTC()
	id := s.genID.Generate()
	key := paymentdomain.CheckoutIdempotencyKey(id.String(), s.newAttemptToken(), req.Amount)

	payment := &paymentdomain.Payment{
		ID:                     id,
		AttendanceID:           req.AttendanceID,
		Method:                 req.Method,
		Amount:                 req.Amount,
		Status:                 paymentdomain.StatusPending,
		CheckoutIdempotencyKey: key,
		CheckoutKeyRevision:    0,
		ApplicationFeeAmount:   req.ApplicationFeeAmount,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err := s.repo.Insert(ctx, s.db, payment)
	if err == nil {
		s.recordReservation(ctx, "created")
		return &paymentdomain.Reservation{
			PaymentID:      id,
			IdempotencyKey: key,
			Revision:       0,
			Amount:         req.Amount,
		}, nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return nil, paymentdomain.DatabaseError(err)
	}

	return s.recoverInsertConflict(ctx, req)
}

func (s *Service) recoverInsertConflict(ctx context.Context, req paymentdomain.ReserveRequest) (*paymentdomain.Reservation, error) {
	open, err := s.repo.FindOpenByAttendance(ctx, s.db, req.AttendanceID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if pending := pickPending(open); pending != nil {
		return s.reusePending(ctx, pending, req)
	}

	terminal, err := s.repo.FindTerminalByAttendance(ctx, s.db, req.AttendanceID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if len(terminal) > 0 {
		return nil, paymentdomain.ErrPaymentAlreadyExists
	}

	// The conflicting row is gone already. Retryable: the next call
	// starts from a clean slate.
	s.recordConflict(ctx, "insert_conflict_unresolved")
	return nil, paymentdomain.DatabaseError(errInsertConflictUnresolved)
}

func (s *Service) recordReservation(ctx context.Context, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReservation(ctx, outcome)
	}
}

func (s *Service) recordConflict(ctx context.Context, reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReservationConflict(ctx, reason)
	}
}
