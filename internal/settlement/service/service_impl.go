package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/attendly/internal/clock"
	"github.com/smallbiznis/attendly/internal/config"
	eventdomain "github.com/smallbiznis/attendly/internal/event/domain"
	obsmetrics "github.com/smallbiznis/attendly/internal/observability/metrics"
	"github.com/smallbiznis/attendly/internal/processor"
	"github.com/smallbiznis/attendly/internal/settlement/domain"
	pkgdb "github.com/smallbiznis/attendly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const snapshotDateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	EventRepo    eventdomain.Repository
	Processor    processor.Client
	PolicyHolder *config.SettlementPolicyHolder
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	eventRepo    eventdomain.Repository
	processor    processor.Client
	policyHolder *config.SettlementPolicyHolder
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("settlement.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		eventRepo:    p.EventRepo,
		processor:    p.Processor,
		policyHolder: p.PolicyHolder,
		obsMetrics:   p.ObsMetrics,
	}
}

var _ domain.Service = (*Service)(nil)

// Generate computes today's settlement snapshot for an event. Without
// force, a snapshot already written today is returned unchanged.
// Aggregation is all or nothing: every figure is computed before the
// single insert, so a half-built snapshot never lands.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	event, err := s.loadEvent(ctx, req.EventID, req.OrganizerID)
	if err != nil {
		return nil, err
	}

	snapshotDate := s.clock.Now().UTC().Format(snapshotDateLayout)

	if !req.Force {
		existing, err := s.repo.FindLatest(ctx, s.db, event.ID, snapshotDate)
		if err != nil {
			return nil, domain.DatabaseError(err)
		}
		if existing != nil {
			return &domain.GenerateResult{Snapshot: existing, AlreadyExisted: true}, nil
		}
	}

	agg, err := s.repo.AggregatePayments(ctx, s.db, event.ID)
	if err != nil {
		return nil, domain.DatabaseError(err)
	}

	processorFee, err := s.reportedFee(ctx, event)
	if err != nil {
		return nil, err
	}

	snapshot := s.buildSnapshot(event, snapshotDate, agg, processorFee)

	// Read-then-insert with no cross-row locking. A concurrent forced
	// generation can produce two versions for the same day; both are
	// kept, history stays auditable.
	for attempt := 0; attempt < 2; attempt++ {
		maxVersion, err := s.repo.MaxVersion(ctx, s.db, event.ID, snapshotDate)
		if err != nil {
			return nil, domain.DatabaseError(err)
		}
		snapshot.Version = maxVersion + 1

		err = s.repo.Insert(ctx, s.db, snapshot)
		if err == nil {
			s.obsMetrics.RecordSettlementSnapshot(ctx, req.Force)
			s.log.Info("settlement snapshot written",
				zap.Int64("event_id", int64(event.ID)),
				zap.String("snapshot_date", snapshotDate),
				zap.Int64("version", snapshot.Version),
				zap.Int64("net_payout", snapshot.NetPayout),
			)
			return &domain.GenerateResult{Snapshot: snapshot}, nil
		}
		if !pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.DatabaseError(err)
		}
		s.log.Warn("settlement version race, retrying insert",
			zap.Int64("event_id", int64(event.ID)),
			zap.Int64("lost_version", snapshot.Version),
		)
	}

	return nil, domain.DatabaseError(fmt.Errorf("settlement version contention for event %d", event.ID))
}

func (s *Service) ListByEvent(ctx context.Context, eventID snowflake.ID) ([]domain.Snapshot, error) {
	event, err := s.loadEvent(ctx, eventID, 0)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.repo.ListByEvent(ctx, s.db, event.ID)
	if err != nil {
		return nil, domain.DatabaseError(err)
	}
	return snapshots, nil
}

func (s *Service) loadEvent(ctx context.Context, eventID, organizerID snowflake.ID) (*eventdomain.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, domain.DatabaseError(err)
	}
	if event == nil {
		return nil, domain.ErrEventNotFound
	}
	if organizerID != 0 && event.OrganizerID != organizerID {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

// reportedFee asks the processor for the event's aggregate transaction
// fee. Fee schedules are external truth, never re-derived from local
// rows.
func (s *Service) reportedFee(ctx context.Context, event *eventdomain.Event) (int64, error) {
	transferGroup := event.TransferGroup
	if transferGroup == "" {
		policy := s.policyHolder.Current()
		transferGroup = fmt.Sprintf("%s-%d", policy.TransferGroupPrefix, event.ID)
	}

	report, err := processor.WithRetry(ctx, "reported_fees", func(ctx context.Context) (*processor.FeeReport, error) {
		return s.processor.ReportedFees(ctx, transferGroup)
	}, processor.WithRetryObserver(func(ctx context.Context, op string) {
		s.obsMetrics.RecordProcessorRetry(ctx, op)
	}))
	if err != nil {
		return 0, err
	}
	return report.TotalFee, nil
}

func (s *Service) buildSnapshot(event *eventdomain.Event, snapshotDate string, agg domain.PaymentAggregate, processorFee int64) *domain.Snapshot {
	policy := s.policyHolder.Current()
	now := s.clock.Now().UTC()

	mode := event.SettlementMode
	if mode == "" {
		mode = policy.Mode
	}
	destination := event.DestinationAccountID
	if destination == "" {
		destination = policy.DefaultDestinationAcc
	}
	transferGroup := event.TransferGroup
	if transferGroup == "" {
		transferGroup = fmt.Sprintf("%s-%d", policy.TransferGroupPrefix, event.ID)
	}

	return &domain.Snapshot{
		ID:             s.genID.Generate(),
		EventID:        event.ID,
		OrganizerID:    event.OrganizerID,
		SnapshotDate:   snapshotDate,
		EventTitle:     event.Title,
		GrossSales:     agg.GrossSales,
		ProcessorFee:   processorFee,
		PlatformFee:    agg.PlatformFee,
		NetPayout:      agg.GrossSales - processorFee - agg.PlatformFee,
		PaymentCount:   agg.PaymentCount,
		RefundedAmount: agg.RefundedAmount,
		RefundedCount:  agg.RefundedCount,

		// Dispute tracking is not wired to a processor feed yet, so the
		// figure is always zero.
		DisputeAmount: 0,

		SettlementMode:       mode,
		TransferGroup:        transferGroup,
		DestinationAccountID: destination,
		GeneratedAt:          now,
		CreatedAt:            now,
	}
}
