package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Run(context.Background(), sqlDB, "sqlite3", "up"))
	return conn
}

func newTestRepository(t *testing.T) (*Repository, *outbox.Repository) {
	t.Helper()
	conn := newTestDB(t)
	obRepo := outbox.NewRepository(conn)
	repo, err := NewRepository(db.Wrap(conn), outbox.NewService(obRepo, logger.Nop()))
	require.NoError(t, err)
	return repo, obRepo
}

func openAttempt(t *testing.T, repo *Repository) uuid.UUID {
	t.Helper()
	rec := &models.CheckoutAttempt{
		TerminalID:     "t1",
		State:          enums.CheckoutStateIdle,
		PaymentMethod:  enums.PaymentMethodCash,
		Subtotal:       money.MustParse("12.00"),
		TaxAmount:      money.MustParse("1.20"),
		DiscountAmount: money.Zero,
		FinalAmount:    money.MustParse("13.20"),
		LineCount:      1,
	}
	require.NoError(t, repo.Open(context.Background(), rec))
	require.NotEqual(t, uuid.Nil, rec.ID)
	return rec.ID
}

func TestRepositoryTransitionSetsFinishedAt(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	id := openAttempt(t, repo)

	require.NoError(t, repo.Transition(ctx, id, StateUpdate{State: enums.CheckoutStateSubmitting}))
	rec, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSubmitting, rec.State)
	require.Nil(t, rec.FinishedAt)

	msg := "backoffice unavailable"
	require.NoError(t, repo.Transition(ctx, id, StateUpdate{State: enums.CheckoutStateFailed, LastError: &msg}))
	rec, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateFailed, rec.State)
	require.NotNil(t, rec.FinishedAt)
	require.Equal(t, msg, *rec.LastError)
}

func TestRepositoryTransitionUnknownAttempt(t *testing.T) {
	repo, _ := newTestRepository(t)
	err := repo.Transition(context.Background(), uuid.New(), StateUpdate{State: enums.CheckoutStateFailed})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryCommitQueuesEvents(t *testing.T) {
	repo, obRepo := newTestRepository(t)
	ctx := context.Background()
	id := openAttempt(t, repo)

	saleID := "sale-1"
	receipt := "R-0001"
	event := outbox.DomainEvent{
		EventType:     enums.EventLoyaltyPointsDebit,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		TerminalID:    "t1",
		Data:          outbox.LoyaltyPointsDebitEvent{SaleID: saleID, CustomerID: "c1", Points: 500},
	}
	upd := StateUpdate{State: enums.CheckoutStateCommitted, SaleID: &saleID, ReceiptNumber: &receipt}
	require.NoError(t, repo.Commit(ctx, id, upd, []outbox.DomainEvent{event}))

	rec, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateCommitted, rec.State)
	require.Equal(t, saleID, *rec.SaleID)
	require.Equal(t, receipt, *rec.ReceiptNumber)

	pending, err := obRepo.CountPending()
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)
}

func TestRepositoryCommitRollsBackOnUnknownAttempt(t *testing.T) {
	repo, obRepo := newTestRepository(t)
	saleID := "sale-2"
	event := outbox.DomainEvent{
		EventType:     enums.EventLoyaltyPointsDebit,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		Data:          outbox.LoyaltyPointsDebitEvent{SaleID: saleID, CustomerID: "c1", Points: 500},
	}
	err := repo.Commit(context.Background(), uuid.New(), StateUpdate{State: enums.CheckoutStateCommitted, SaleID: &saleID}, []outbox.DomainEvent{event})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	pending, err := obRepo.CountPending()
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestRepositoryListByTerminal(t *testing.T) {
	repo, _ := newTestRepository(t)
	first := openAttempt(t, repo)
	second := openAttempt(t, repo)
	third := openAttempt(t, repo)

	rows, next, err := repo.ListByTerminal(context.Background(), "t1", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Empty(t, next)

	rows, next, err = repo.ListByTerminal(context.Background(), "other", pagination.Params{Limit: 5})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Empty(t, next)

	seen := map[uuid.UUID]bool{}
	page, next, err := repo.ListByTerminal(context.Background(), "t1", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	for _, row := range page {
		seen[row.ID] = true
	}
	page, next, err = repo.ListByTerminal(context.Background(), "t1", pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Empty(t, next)
	seen[page[0].ID] = true
	require.True(t, seen[first] && seen[second] && seen[third])
}

func TestRepositoryListRejectsBadCursor(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, _, err := repo.ListByTerminal(context.Background(), "t1", pagination.Params{Cursor: "not-a-cursor"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRepositoryDeleteFinishedBefore(t *testing.T) {
	repo, _ := newTestRepository(t)
	done := openAttempt(t, repo)
	openAttempt(t, repo)
	require.NoError(t, repo.Transition(context.Background(), done, StateUpdate{State: enums.CheckoutStateFailed}))

	deleted, err := repo.DeleteFinishedBefore(context.Background(), nil, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	rows, _, err := repo.ListByTerminal(context.Background(), "t1", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
