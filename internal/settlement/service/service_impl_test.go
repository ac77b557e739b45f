package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	attendancedomain "github.com/smallbiznis/attendly/internal/attendance/domain"
	"github.com/smallbiznis/attendly/internal/clock"
	"github.com/smallbiznis/attendly/internal/config"
	eventdomain "github.com/smallbiznis/attendly/internal/event/domain"
	eventrepo "github.com/smallbiznis/attendly/internal/event/repository"
	paymentdomain "github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/smallbiznis/attendly/internal/processor"
	"github.com/smallbiznis/attendly/internal/settlement/domain"
	settlementrepo "github.com/smallbiznis/attendly/internal/settlement/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Fakes --

type fakeProcessor struct {
	fee      int64
	feeCalls int
	feeErr   error
}

func (f *fakeProcessor) CreateCheckoutSession(context.Context, processor.CreateCheckoutRequest) (*processor.CheckoutSession, error) {
	return &processor.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}

func (f *fakeProcessor) CreateRefund(context.Context, processor.CreateRefundRequest) (*processor.Refund, error) {
	return &processor.Refund{ID: "re_1", Status: "succeeded"}, nil
}

func (f *fakeProcessor) ReportedFees(_ context.Context, transferGroup string) (*processor.FeeReport, error) {
	f.feeCalls++
	if f.feeErr != nil {
		return nil, f.feeErr
	}
	return &processor.FeeReport{TransferGroup: transferGroup, TotalFee: f.fee}, nil
}

// -- Fixtures --

type fixture struct {
	db    *gorm.DB
	svc   *Service
	node  *snowflake.Node
	clock *clock.FakeClock
	proc  *fakeProcessor
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = db.AutoMigrate(
		&eventdomain.Event{},
		&attendancedomain.Attendance{},
		&paymentdomain.Payment{},
		&domain.Snapshot{},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS settlement_snapshots_event_date_version
		ON settlement_snapshots (event_id, snapshot_date, version)`).Error; err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	proc := &fakeProcessor{fee: 88}

	holder := &config.SettlementPolicyHolder{}
	holder.Store(config.SettlementPolicy{
		Mode:                config.SettlementModeDestinationCharge,
		PlatformFeeBps:      1000,
		TransferGroupPrefix: "event",
	})

	log := zap.NewNop()
	svc := NewService(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fakeClock,
		Repo:         settlementrepo.Provide(log),
		EventRepo:    eventrepo.Provide(),
		Processor:    proc,
		PolicyHolder: holder,
	})

	return &fixture{db: db, svc: svc, node: node, clock: fakeClock, proc: proc}
}

func (f *fixture) seedEvent(t *testing.T) *eventdomain.Event {
	t.Helper()
	now := f.clock.Now()
	event := eventdomain.Event{
		ID:                   f.node.Generate(),
		OrganizerID:          f.node.Generate(),
		Title:                "Spring Conference",
		DestinationAccountID: "acct_1",
		TransferGroup:        "event-42",
		SettlementMode:       "destination_charge",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.db.Create(&event).Error; err != nil {
		t.Fatal(err)
	}
	return &event
}

func (f *fixture) seedPayment(t *testing.T, eventID snowflake.ID, method paymentdomain.Method, status paymentdomain.Status, amount, fee, refunded int64) {
	t.Helper()
	now := f.clock.Now()
	attendance := attendancedomain.Attendance{
		ID:             f.node.Generate(),
		EventID:        eventID,
		ParticipantRef: "participant",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.db.Create(&attendance).Error; err != nil {
		t.Fatal(err)
	}
	payment := paymentdomain.Payment{
		ID:                   f.node.Generate(),
		AttendanceID:         attendance.ID,
		Method:               method,
		Amount:               amount,
		Status:               status,
		ApplicationFeeAmount: fee,
		RefundedAmount:       refunded,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.db.Create(&payment).Error; err != nil {
		t.Fatal(err)
	}
}

// -- Tests --

func TestGenerate_WorkedFeeExample(t *testing.T) {
	f := newFixture(t, "settlement_worked")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 0)

	result, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)
	assert.False(t, result.AlreadyExisted)

	snapshot := result.Snapshot
	assert.Equal(t, int64(2000), snapshot.GrossSales)
	assert.Equal(t, int64(88), snapshot.ProcessorFee)
	assert.Equal(t, int64(200), snapshot.PlatformFee)
	assert.Equal(t, int64(1712), snapshot.NetPayout)
	assert.Equal(t, int64(1), snapshot.PaymentCount)
	assert.Equal(t, int64(1), snapshot.Version)
	assert.Equal(t, "2024-06-01", snapshot.SnapshotDate)
	assert.Equal(t, "Spring Conference", snapshot.EventTitle)
	assert.Equal(t, "event-42", snapshot.TransferGroup)
}

func TestGenerate_ExcludesCashAndNonPaidRows(t *testing.T) {
	f := newFixture(t, "settlement_filter")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 0)
	f.seedPayment(t, event.ID, paymentdomain.MethodCash, paymentdomain.StatusReceived, 1500, 0, 0)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPending, 3000, 300, 0)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusFailed, 2500, 250, 0)

	result, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), result.Snapshot.GrossSales)
	assert.Equal(t, int64(1), result.Snapshot.PaymentCount)
	assert.Equal(t, int64(200), result.Snapshot.PlatformFee)
}

func TestGenerate_CountsRefunds(t *testing.T) {
	f := newFixture(t, "settlement_refunds")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 500)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusRefunded, 1000, 100, 1000)

	result, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)
	assert.Equal(t, int64(1500), result.Snapshot.RefundedAmount)
	assert.Equal(t, int64(2), result.Snapshot.RefundedCount)
	// Fully refunded rows have left paid, so they no longer count as
	// gross sales.
	assert.Equal(t, int64(2000), result.Snapshot.GrossSales)
}

func TestGenerate_SameDayWithoutForceIsIdempotent(t *testing.T) {
	f := newFixture(t, "settlement_idempotent")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 0)

	first, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)

	second, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)
	// The second call never re-aggregates or re-fetches fees.
	assert.Equal(t, 1, f.proc.feeCalls)
}

func TestGenerate_ForceAppendsVersionAndKeepsPrior(t *testing.T) {
	f := newFixture(t, "settlement_force")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 0)

	first, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)

	forced, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID, Force: true})
	assert.NoError(t, err)
	assert.False(t, forced.AlreadyExisted)
	assert.NotEqual(t, first.Snapshot.ID, forced.Snapshot.ID)
	assert.Equal(t, first.Snapshot.Version+1, forced.Snapshot.Version)

	snapshots, err := f.svc.ListByEvent(context.Background(), event.ID)
	assert.NoError(t, err)
	assert.Len(t, snapshots, 2)
}

func TestGenerate_NewDayStartsAtVersionOne(t *testing.T) {
	f := newFixture(t, "settlement_new_day")
	event := f.seedEvent(t)
	f.seedPayment(t, event.ID, paymentdomain.MethodProcessor, paymentdomain.StatusPaid, 2000, 200, 0)

	_, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)

	f.clock.Advance(24 * time.Hour)

	next, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.NoError(t, err)
	assert.False(t, next.AlreadyExisted)
	assert.Equal(t, int64(1), next.Snapshot.Version)
	assert.Equal(t, "2024-06-02", next.Snapshot.SnapshotDate)
}

func TestGenerate_UnknownEvent(t *testing.T) {
	f := newFixture(t, "settlement_unknown_event")

	_, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: f.node.Generate()})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestGenerate_WrongOrganizerForbidden(t *testing.T) {
	f := newFixture(t, "settlement_forbidden")
	event := f.seedEvent(t)

	_, err := f.svc.Generate(context.Background(), domain.GenerateRequest{
		EventID:     event.ID,
		OrganizerID: f.node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGenerate_ProcessorFeeFailurePropagates(t *testing.T) {
	f := newFixture(t, "settlement_fee_failure")
	event := f.seedEvent(t)
	f.proc.feeErr = processor.ErrProcessor

	_, err := f.svc.Generate(context.Background(), domain.GenerateRequest{EventID: event.ID})
	assert.Error(t, err)

	// All or nothing: no snapshot row may exist after a failed run.
	snapshots, err := f.svc.ListByEvent(context.Background(), event.ID)
	assert.NoError(t, err)
	assert.Empty(t, snapshots)
}
