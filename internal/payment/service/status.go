package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"go.uber.org/zap"
)

var errInsertConflictUnresolved = errors.New("insert conflict with no surviving open or terminal payment")

// UpdateStatus drives a payment through the state machine with a guarded
// status update. Duplicate confirmations for the same target status are
// treated as idempotent successes; processors redeliver.
func (s *Service) UpdateStatus(ctx context.Context, req paymentdomain.UpdateStatusRequest) (*paymentdomain.Payment, error) {
	payment, err := s.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == req.To {
		return payment, nil
	}

	if err := paymentdomain.ValidateTransition(payment.Method, payment.Status, req.To); err != nil {
		return nil, err
	}

	applied, err := s.repo.TransitionStatus(ctx, s.db, paymentdomain.StatusTransition{
		PaymentID:          payment.ID,
		From:               payment.Status,
		To:                 req.To,
		ProcessorReference: req.ProcessorReference,
		PaidAt:             req.PaidAt,
		ClearCheckoutKey:   !req.To.IsOpen(),
		Now:                time.Now().UTC(),
	})
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if !applied {
		// Lost the guarded write. If the row already reached the target
		// status through a concurrent confirmation, that is a success.
		current, err := s.GetByID(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
		if current.Status == req.To {
			return current, nil
		}
		s.log.Warn("status transition lost guarded write",
			zap.Int64("payment_id", payment.ID.Int64()),
			zap.String("from", string(payment.Status)),
			zap.String("to", string(req.To)),
			zap.String("current", string(current.Status)),
		)
		return nil, paymentdomain.ErrConcurrentUpdate
	}

	return s.GetByID(ctx, req.PaymentID)
}

// Cancel moves a pending payment to canceled. Canceled rows stay dead:
// any future attempt creates a brand-new payment.
func (s *Service) Cancel(ctx context.Context, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	return s.UpdateStatus(ctx, paymentdomain.UpdateStatusRequest{
		PaymentID: paymentID,
		To:        paymentdomain.StatusCanceled,
	})
}

// RecordRefund books refund amounts onto a terminal payment. When the
// payment is fully refunded it also transitions to refunded, if the
// state machine allows it from the current status.
func (s *Service) RecordRefund(ctx context.Context, req paymentdomain.RecordRefundRequest) (*paymentdomain.Payment, error) {
	if req.RefundedAmount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	payment, err := s.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsTerminal() {
		return nil, &paymentdomain.InvalidTransitionError{
			Method: payment.Method,
			From:   payment.Status,
			To:     paymentdomain.StatusRefunded,
		}
	}
	// Booking past the original amount would make refunded_amount exceed
	// the payment. Reject before touching the row.
	if payment.RefundedAmount+req.RefundedAmount > payment.Amount {
		return nil, paymentdomain.ErrInvalidAmount
	}

	marked, err := s.repo.MarkRefunded(ctx, s.db, paymentdomain.RefundMark{
		PaymentID:              payment.ID,
		RefundedAmount:         req.RefundedAmount,
		ApplicationFeeRefunded: req.ApplicationFeeRefunded,
		Now:                    time.Now().UTC(),
	})
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if !marked {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	current, err := s.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if current.RefundedAmount >= current.Amount &&
		current.Status != paymentdomain.StatusRefunded &&
		paymentdomain.CanTransition(current.Method, current.Status, paymentdomain.StatusRefunded) {
		return s.UpdateStatus(ctx, paymentdomain.UpdateStatusRequest{
			PaymentID: current.ID,
			To:        paymentdomain.StatusRefunded,
		})
	}

	return current, nil
}
