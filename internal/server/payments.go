package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	attendancedomain "github.com/smallbiznis/attendly/internal/attendance/domain"
	"github.com/smallbiznis/attendly/internal/config"
	eventdomain "github.com/smallbiznis/attendly/internal/event/domain"
	obsmetrics "github.com/smallbiznis/attendly/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentHandlerParams struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Config         config.Config
	PolicyHolder   *config.SettlementPolicyHolder
	Payments       paymentdomain.Service
	AttendanceRepo attendancedomain.Repository
	EventRepo      eventdomain.Repository
	Processor      processor.Client
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type PaymentHandler struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	cfg            config.Config
	policyHolder   *config.SettlementPolicyHolder
	payments       paymentdomain.Service
	attendanceRepo attendancedomain.Repository
	eventRepo      eventdomain.Repository
	processor      processor.Client
	obsMetrics     *obsmetrics.Metrics
}

func NewPaymentHandler(p PaymentHandlerParams) *PaymentHandler {
	return &PaymentHandler{
		db:             p.DB,
		log:            p.Log.Named("server.payments"),
		genID:          p.GenID,
		cfg:            p.Config,
		policyHolder:   p.PolicyHolder,
		payments:       p.Payments,
		attendanceRepo: p.AttendanceRepo,
		eventRepo:      p.EventRepo,
		processor:      p.Processor,
		obsMetrics:     p.ObsMetrics,
	}
}

// retryOptions bounds processor retries by config and counts every
// retried attempt.
func (h *PaymentHandler) retryOptions() []processor.RetryOption {
	return []processor.RetryOption{
		processor.WithMaxRetries(h.cfg.ProcessorMaxRetries),
		processor.WithRetryObserver(func(ctx context.Context, op string) {
			h.obsMetrics.RecordProcessorRetry(ctx, op)
		}),
	}
}

func (h *PaymentHandler) Register(r gin.IRouter) {
	r.POST("/attendances/:attendance_id/checkout", h.Checkout)
	r.GET("/payments/:payment_id", h.Get)
	r.POST("/payments/:payment_id/status", h.UpdateStatus)
	r.POST("/payments/:payment_id/cancel", h.Cancel)
	r.POST("/payments/:payment_id/refund", h.Refund)
}

type checkoutRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Method string `json:"method"`
}

type checkoutResponse struct {
	PaymentID      string `json:"payment_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Revision       int64  `json:"revision"`
	Amount         int64  `json:"amount"`
	CheckoutURL    string `json:"checkout_url,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// Checkout reserves a payment row for the attendance and, for processor
// payments, opens a checkout session bound to the reserved idempotency
// key. Retries ride the same key end to end.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	attendanceID, ok := parseID(c, "attendance_id")
	if !ok {
		return
	}

	var body checkoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: "validation_error", Message: err.Error(),
		}})
		return
	}

	method := paymentdomain.Method(body.Method)
	if body.Method == "" {
		method = paymentdomain.MethodProcessor
	}

	ctx := c.Request.Context()

	attendance, event, err := h.loadAttendanceEvent(c, attendanceID)
	if err != nil {
		return
	}

	policy := h.policyHolder.Current()
	fee := body.Amount * int64(policy.PlatformFeeBps) / 10000

	reservation, err := h.payments.Reserve(ctx, paymentdomain.ReserveRequest{
		AttendanceID:         attendanceID,
		Amount:               body.Amount,
		Method:               method,
		ApplicationFeeAmount: fee,
	})
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	resp := checkoutResponse{
		PaymentID:      reservation.PaymentID.String(),
		IdempotencyKey: reservation.IdempotencyKey,
		Revision:       reservation.Revision,
		Amount:         reservation.Amount,
	}

	if method == paymentdomain.MethodProcessor {
		session, err := processor.WithRetry(ctx, "create_checkout", func(ctx context.Context) (*processor.CheckoutSession, error) {
			return h.processor.CreateCheckoutSession(ctx, processor.CreateCheckoutRequest{
				Amount:               reservation.Amount,
				Currency:             "usd",
				DestinationAccountID: event.DestinationAccountID,
				ApplicationFeeAmount: fee,
				TransferGroup:        event.TransferGroup,
				Metadata: processor.CheckoutMetadata{
					PaymentID:    reservation.PaymentID.String(),
					AttendanceID: attendance.ID.String(),
					EventTitle:   event.Title,
				},
				IdempotencyKey: reservation.IdempotencyKey,
			})
		}, h.retryOptions()...)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		resp.SessionID = session.ID
		resp.CheckoutURL = session.URL
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	paymentID, ok := parseID(c, "payment_id")
	if !ok {
		return
	}

	payment, err := h.payments.GetByID(c.Request.Context(), paymentID)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, payment)
}

type updateStatusRequest struct {
	Status             string     `json:"status" binding:"required"`
	ProcessorReference string     `json:"processor_reference"`
	PaidAt             *time.Time `json:"paid_at"`
}

func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	paymentID, ok := parseID(c, "payment_id")
	if !ok {
		return
	}

	var body updateStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: "validation_error", Message: err.Error(),
		}})
		return
	}

	payment, err := h.payments.UpdateStatus(c.Request.Context(), paymentdomain.UpdateStatusRequest{
		PaymentID:          paymentID,
		To:                 paymentdomain.Status(body.Status),
		ProcessorReference: body.ProcessorReference,
		PaidAt:             body.PaidAt,
	})
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	paymentID, ok := parseID(c, "payment_id")
	if !ok {
		return
	}

	payment, err := h.payments.Cancel(c.Request.Context(), paymentID)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, payment)
}

type refundRequest struct {
	// Amount, when omitted, refunds the full payment amount.
	Amount               *int64 `json:"amount"`
	RefundApplicationFee bool   `json:"refund_application_fee"`
	ReverseTransfer      bool   `json:"reverse_transfer"`
}

// Refund issues a processor refund and books it on the payment row. The
// refund id is minted once per request; every retry of the processor
// call reuses the key derived from it, so a refund can never double.
func (h *PaymentHandler) Refund(c *gin.Context) {
	paymentID, ok := parseID(c, "payment_id")
	if !ok {
		return
	}

	var body refundRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: "validation_error", Message: err.Error(),
		}})
		return
	}

	ctx := c.Request.Context()

	payment, err := h.payments.GetByID(ctx, paymentID)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	remaining := payment.Amount - payment.RefundedAmount
	amount := remaining
	if body.Amount != nil {
		amount = *body.Amount
	}
	if amount <= 0 || amount > remaining {
		_ = c.Error(paymentdomain.ErrInvalidAmount)
		c.Abort()
		return
	}

	refundID := h.genID.Generate()
	key := paymentdomain.RefundIdempotencyKey(refundID.String(), payment.ID.String(), amount)

	var feeRefund int64
	if body.RefundApplicationFee {
		feeRefund = payment.ApplicationFeeAmount - payment.ApplicationFeeRefunded
		if feeRefund < 0 {
			feeRefund = 0
		}
	}

	if payment.Method == paymentdomain.MethodProcessor {
		refundAmount := amount
		_, err = processor.WithRetry(ctx, "create_refund", func(ctx context.Context) (*processor.Refund, error) {
			return h.processor.CreateRefund(ctx, processor.CreateRefundRequest{
				PaymentReference:     payment.ProcessorReference,
				Amount:               &refundAmount,
				ReverseTransfer:      body.ReverseTransfer,
				RefundApplicationFee: body.RefundApplicationFee,
				IdempotencyKey:       key,
			})
		}, h.retryOptions()...)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
	}

	updated, err := h.payments.RecordRefund(ctx, paymentdomain.RecordRefundRequest{
		PaymentID:              payment.ID,
		RefundedAmount:         amount,
		ApplicationFeeRefunded: feeRefund,
	})
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *PaymentHandler) loadAttendanceEvent(c *gin.Context, attendanceID snowflake.ID) (*attendancedomain.Attendance, *eventdomain.Event, error) {
	ctx := c.Request.Context()

	attendance, err := h.attendanceRepo.FindByID(ctx, h.db, attendanceID)
	if err != nil {
		_ = c.Error(paymentdomain.DatabaseError(err))
		c.Abort()
		return nil, nil, err
	}
	if attendance == nil {
		err = paymentdomain.ErrAttendanceNotFound
		_ = c.Error(err)
		c.Abort()
		return nil, nil, err
	}

	event, err := h.eventRepo.FindByID(ctx, h.db, attendance.EventID)
	if err != nil {
		_ = c.Error(paymentdomain.DatabaseError(err))
		c.Abort()
		return nil, nil, err
	}
	if event == nil {
		err = eventdomain.ErrNotFound
		_ = c.Error(err)
		c.Abort()
		return nil, nil, err
	}
	return attendance, event, nil
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: "validation_error", Message: "invalid " + param,
		}})
		return 0, false
	}
	return id, true
}
