package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	attendancedomain "github.com/smallbiznis/attendly/internal/attendance/domain"
	obsmetrics "github.com/smallbiznis/attendly/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           paymentdomain.Repository
	AttendanceRepo attendancedomain.Repository
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           paymentdomain.Repository
	attendanceRepo attendancedomain.Repository
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		attendanceRepo: p.AttendanceRepo,
		obsMetrics:     p.ObsMetrics,
	}
}

var _ paymentdomain.Service = (*Service)(nil)

func (s *Service) GetByID(ctx context.Context, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, paymentdomain.DatabaseError(err)
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

// newAttemptToken mints the per-attempt component of a checkout
// idempotency key.
func (s *Service) newAttemptToken() string {
	return ulid.Make().String()
}
