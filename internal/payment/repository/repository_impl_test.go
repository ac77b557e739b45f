package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/attendly/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRepoTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.Payment{}); err != nil {
		t.Fatal(err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_pending_per_attendance
		ON payments (attendance_id) WHERE status = 'pending'`).Error; err != nil {
		t.Fatal(err)
	}
	return db
}

func seedPayment(t *testing.T, db *gorm.DB, node *snowflake.Node, status domain.Status) domain.Payment {
	t.Helper()
	now := time.Now().UTC()
	payment := domain.Payment{
		ID:                     node.Generate(),
		AttendanceID:           node.Generate(),
		Method:                 domain.MethodProcessor,
		Amount:                 2000,
		Status:                 status,
		CheckoutIdempotencyKey: "checkout:seed:tok:2000",
		CheckoutKeyRevision:    2,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatal(err)
	}
	return payment
}

func TestClaimCheckoutKey_OnlyOneOfTwoClaimsWins(t *testing.T) {
	db := newRepoTestDB(t, "repo_cas")
	node, _ := snowflake.NewNode(1)
	repo := Provide(zap.NewNop())
	payment := seedPayment(t, db, node, domain.StatusPending)

	// Two claims against the same observed revision: the compare-and-swap
	// admits exactly one.
	first, err := repo.ClaimCheckoutKey(context.Background(), db, domain.CheckoutKeyClaim{
		PaymentID:        payment.ID,
		ExpectedRevision: payment.CheckoutKeyRevision,
		NewKey:           "checkout:a:tok:2000",
		NewRevision:      payment.CheckoutKeyRevision + 1,
		Now:              time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.True(t, first)

	second, err := repo.ClaimCheckoutKey(context.Background(), db, domain.CheckoutKeyClaim{
		PaymentID:        payment.ID,
		ExpectedRevision: payment.CheckoutKeyRevision,
		NewKey:           "checkout:b:tok:2000",
		NewRevision:      payment.CheckoutKeyRevision + 1,
		Now:              time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.False(t, second)

	current, err := repo.FindByID(context.Background(), db, payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, "checkout:a:tok:2000", current.CheckoutIdempotencyKey)
	assert.Equal(t, payment.CheckoutKeyRevision+1, current.CheckoutKeyRevision)
}

func TestClaimCheckoutKey_NonPendingRowRejectsClaim(t *testing.T) {
	db := newRepoTestDB(t, "repo_cas_status")
	node, _ := snowflake.NewNode(1)
	repo := Provide(zap.NewNop())
	payment := seedPayment(t, db, node, domain.StatusPaid)

	claimed, err := repo.ClaimCheckoutKey(context.Background(), db, domain.CheckoutKeyClaim{
		PaymentID:        payment.ID,
		ExpectedRevision: payment.CheckoutKeyRevision,
		NewKey:           "checkout:late:tok:2000",
		NewRevision:      payment.CheckoutKeyRevision + 1,
		Now:              time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.False(t, claimed)
}

func TestTransitionStatus_GuardedByCurrentStatus(t *testing.T) {
	db := newRepoTestDB(t, "repo_transition")
	node, _ := snowflake.NewNode(1)
	repo := Provide(zap.NewNop())
	payment := seedPayment(t, db, node, domain.StatusPending)

	applied, err := repo.TransitionStatus(context.Background(), db, domain.StatusTransition{
		PaymentID:          payment.ID,
		From:               domain.StatusPending,
		To:                 domain.StatusPaid,
		ProcessorReference: "pi_9",
		ClearCheckoutKey:   true,
		Now:                time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.True(t, applied)

	// Same guard again: the row is no longer pending, nothing applies.
	applied, err = repo.TransitionStatus(context.Background(), db, domain.StatusTransition{
		PaymentID:        payment.ID,
		From:             domain.StatusPending,
		To:               domain.StatusFailed,
		ClearCheckoutKey: false,
		Now:              time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.False(t, applied)

	current, err := repo.FindByID(context.Background(), db, payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, current.Status)
	assert.Equal(t, "pi_9", current.ProcessorReference)
	assert.Empty(t, current.CheckoutIdempotencyKey)
}

func TestPendingUniqueIndex_SecondPendingInsertFails(t *testing.T) {
	db := newRepoTestDB(t, "repo_unique")
	node, _ := snowflake.NewNode(1)
	repo := Provide(zap.NewNop())
	payment := seedPayment(t, db, node, domain.StatusPending)

	now := time.Now().UTC()
	err := repo.Insert(context.Background(), db, &domain.Payment{
		ID:           node.Generate(),
		AttendanceID: payment.AttendanceID,
		Method:       domain.MethodProcessor,
		Amount:       2000,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	assert.Error(t, err)
}

func TestNormalize_MalformedRevisionCoercedToZero(t *testing.T) {
	db := newRepoTestDB(t, "repo_malformed")
	node, _ := snowflake.NewNode(1)
	repo := Provide(zap.NewNop())
	payment := seedPayment(t, db, node, domain.StatusPending)

	// sqlite's dynamic typing lets garbage land in the revision column,
	// standing in for a corrupt row in any store.
	err := db.Exec(`UPDATE payments SET checkout_key_revision = 'not-a-number' WHERE id = ?`, payment.ID).Error
	assert.NoError(t, err)

	current, err := repo.FindByID(context.Background(), db, payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), current.CheckoutKeyRevision)
}
