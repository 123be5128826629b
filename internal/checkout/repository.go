package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StateUpdate is a journal transition.
type StateUpdate struct {
	State         enums.CheckoutState
	SaleID        *string
	ReceiptNumber *string
	LastError     *string
}

// Repository journals checkout attempts in checkout_attempts.
type Repository struct {
	db     txRunner
	outbox outboxEmitter
}

func NewRepository(db txRunner, ob outboxEmitter) (*Repository, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if ob == nil {
		return nil, errors.New("outbox service required")
	}
	return &Repository{db: db, outbox: ob}, nil
}

// Open inserts a new attempt. created_at is stamped in UTC so keyset cursors
// compare correctly on SQLite, which stores timestamps as text.
func (r *Repository) Open(ctx context.Context, rec *models.CheckoutAttempt) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return r.db.DB().WithContext(ctx).Create(rec).Error
}

func (r *Repository) Transition(ctx context.Context, id uuid.UUID, upd StateUpdate) error {
	return r.transitionTx(r.db.DB().WithContext(ctx), id, upd)
}

// Commit records the committed state and queues the follow-up events in one
// transaction.
func (r *Repository) Commit(ctx context.Context, id uuid.UUID, upd StateUpdate, events []outbox.DomainEvent) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.transitionTx(tx, id, upd); err != nil {
			return err
		}
		for _, event := range events {
			if err := r.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) transitionTx(tx *gorm.DB, id uuid.UUID, upd StateUpdate) error {
	fields := map[string]any{
		"state":      upd.State,
		"updated_at": time.Now().UTC(),
	}
	if upd.SaleID != nil {
		fields["sale_id"] = *upd.SaleID
	}
	if upd.ReceiptNumber != nil {
		fields["receipt_number"] = *upd.ReceiptNumber
	}
	if upd.LastError != nil {
		fields["last_error"] = *upd.LastError
	}
	if upd.State.IsTerminal() {
		fields["finished_at"] = time.Now().UTC()
	}
	res := tx.Model(&models.CheckoutAttempt{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutAttempt, error) {
	var rec models.CheckoutAttempt
	if err := r.db.DB().WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByTerminal pages through a terminal's attempts, newest first. The
// returned cursor is empty on the last page.
func (r *Repository) ListByTerminal(ctx context.Context, terminalID string, params pagination.Params) ([]models.CheckoutAttempt, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.db.DB().WithContext(ctx).Where("terminal_id = ?", terminalID)
	if cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.CheckoutAttempt
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(a models.CheckoutAttempt) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return rows, next, nil
}

// DeleteFinishedBefore drops attempts that reached a terminal state before
// cutoff. In-flight attempts are never removed.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db.DB()
	}
	res := tx.WithContext(ctx).
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff).
		Delete(&models.CheckoutAttempt{})
	return res.RowsAffected, res.Error
}
