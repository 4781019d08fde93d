// Package storage is the pgx-backed persistence layer behind the pipeline
// interfaces.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"raceday-backend/allocator"
	"raceday-backend/models"
	"raceday-backend/payment"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// helpers serve pooled reads and in-transaction work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const registrationColumns = `
	id, order_code, full_name, gender, date_of_birth, email, phone,
	distance_id, goal_id, shirt_type, shirt_size, payment_status,
	total_amount, payment_date, bib_number, import_batch_id,
	created_at, updated_at`

func scanRegistration(row pgx.Row) (models.Registration, error) {
	var r models.Registration
	err := row.Scan(
		&r.ID,
		&r.OrderCode,
		&r.FullName,
		&r.Gender,
		&r.DateOfBirth,
		&r.Email,
		&r.Phone,
		&r.DistanceID,
		&r.GoalID,
		&r.ShirtType,
		&r.ShirtSize,
		&r.PaymentStatus,
		&r.TotalAmount,
		&r.PaymentDate,
		&r.BibNumber,
		&r.ImportBatchID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, models.ErrNotFound
	}
	return r, err
}

// --- registrations ---

func (s *Store) CreateRegistration(ctx context.Context, r models.Registration) (models.Registration, error) {
	query := `
		INSERT INTO registrations (
			id, order_code, full_name, gender, date_of_birth, email, phone,
			distance_id, goal_id, shirt_type, shirt_size, payment_status,
			total_amount, import_batch_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING ` + registrationColumns

	now := time.Now().UTC()
	return scanRegistration(s.pool.QueryRow(ctx, query,
		r.ID,
		r.OrderCode,
		r.FullName,
		r.Gender,
		r.DateOfBirth,
		r.Email,
		r.Phone,
		r.DistanceID,
		r.GoalID,
		r.ShirtType,
		r.ShirtSize,
		models.PaymentPending,
		r.TotalAmount,
		r.ImportBatchID,
		now,
	))
}

func (s *Store) GetRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return scanRegistration(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) GetRegistrationByOrderCode(ctx context.Context, code string) (models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE order_code = $1`
	return scanRegistration(s.pool.QueryRow(ctx, query, code))
}

// GetCredential returns the stored check-in artifact. models.ErrNotFound
// covers both a missing registration and a registration without artifact.
func (s *Store) GetCredential(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var artifact []byte
	err := s.pool.QueryRow(ctx, `SELECT checkin_credential FROM registrations WHERE id = $1`, id).Scan(&artifact)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(artifact) == 0 {
		return nil, models.ErrNotFound
	}
	return artifact, nil
}

// CancelRegistration transitions PENDING -> FAILED. The status guard in the
// WHERE clause is what keeps PAID terminal.
func (s *Store) CancelRegistration(ctx context.Context, id uuid.UUID) (models.Registration, error) {
	query := `
		UPDATE registrations
		SET payment_status = $2, updated_at = $3
		WHERE id = $1 AND payment_status = $4
		RETURNING ` + registrationColumns

	reg, err := scanRegistration(s.pool.QueryRow(ctx, query, id, models.PaymentFailed, time.Now().UTC(), models.PaymentPending))
	if errors.Is(err, models.ErrNotFound) {
		// Distinguish "no such registration" from "not cancellable".
		if _, getErr := s.GetRegistration(ctx, id); getErr == nil {
			return models.Registration{}, fmt.Errorf("registration is not PENDING: %w", models.ErrConflict)
		}
		return models.Registration{}, models.ErrNotFound
	}
	return reg, err
}

// --- reference data ---

func (s *Store) GetDistance(ctx context.Context, id int64) (models.Distance, error) {
	return getDistance(ctx, s.pool, id)
}

func (s *Store) GetGoal(ctx context.Context, id int64) (models.Goal, error) {
	return getGoal(ctx, s.pool, id)
}

func getDistance(ctx context.Context, q querier, id int64) (models.Distance, error) {
	var d models.Distance
	err := q.QueryRow(ctx, `
		SELECT id, event_id, name, bib_prefix, max_participants, base_amount
		FROM distances
		WHERE id = $1`, id).Scan(&d.ID, &d.EventID, &d.Name, &d.BibPrefix, &d.MaxParticipants, &d.BaseAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, models.ErrNotFound
	}
	return d, err
}

func getGoal(ctx context.Context, q querier, id int64) (models.Goal, error) {
	var g models.Goal
	err := q.QueryRow(ctx, `
		SELECT id, distance_id, name, bib_prefix, price_adjustment
		FROM goals
		WHERE id = $1`, id).Scan(&g.ID, &g.DistanceID, &g.Name, &g.BibPrefix, &g.PriceAdjustment)
	if errors.Is(err, pgx.ErrNoRows) {
		return g, models.ErrNotFound
	}
	return g, err
}

// --- payment records ---

func (s *Store) HasPaymentRecord(ctx context.Context, externalTxnID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_records WHERE external_txn_id = $1)`, externalTxnID).Scan(&exists)
	return exists, err
}

// --- notification log ---

func (s *Store) AppendNotificationLog(ctx context.Context, entry models.NotificationLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_logs (id, registration_id, kind, channel, status, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.RegistrationID,
		entry.Kind,
		entry.Channel,
		entry.Status,
		entry.ErrorDetail,
		entry.CreatedAt,
	)
	return err
}

func (s *Store) HasNotification(ctx context.Context, registrationID uuid.UUID, kind string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_logs
			WHERE registration_id = $1 AND kind = $2 AND status = $3
		)`, registrationID, kind, models.NotificationSent).Scan(&exists)
	return exists, err
}

func (s *Store) ListNotificationLogs(ctx context.Context, registrationID uuid.UUID) ([]models.NotificationLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, registration_id, kind, channel, status, error_detail, created_at
		FROM notification_logs
		WHERE registration_id = $1
		ORDER BY created_at DESC`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.NotificationLog
	for rows.Next() {
		var entry models.NotificationLog
		if err := rows.Scan(&entry.ID, &entry.RegistrationID, &entry.Kind, &entry.Channel, &entry.Status, &entry.ErrorDetail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// --- import batches ---

func (s *Store) GetImportBatch(ctx context.Context, id uuid.UUID) (models.ImportBatch, error) {
	var b models.ImportBatch
	err := s.pool.QueryRow(ctx, `
		SELECT id, label, status, total_count, success_count, first_bib, last_bib, created_at, updated_at
		FROM import_batches
		WHERE id = $1`, id).Scan(&b.ID, &b.Label, &b.Status, &b.TotalCount, &b.SuccessCount, &b.FirstBib, &b.LastBib, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, models.ErrNotFound
	}
	return b, err
}

func (s *Store) ListPendingBatchMembers(ctx context.Context, batchID uuid.UUID) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM registrations
		WHERE import_batch_id = $1 AND payment_status = $2
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, batchID, models.PaymentPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, reg)
	}
	return members, rows.Err()
}

func (s *Store) FinishImportBatch(ctx context.Context, id uuid.UUID, status string, successCount int, firstBib, lastBib *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_batches
		SET status = $2, success_count = $3, first_bib = $4, last_bib = $5, updated_at = $6
		WHERE id = $1`,
		id, status, successCount, firstBib, lastBib, time.Now().UTC())
	return err
}

// --- confirmation transaction ---

// InTx runs fn inside one database transaction; fn's error rolls the whole
// confirmation back, ordinal reservation included.
func (s *Store) InTx(ctx context.Context, fn func(tx payment.ConfirmTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&confirmTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type confirmTx struct {
	q querier
}

func (t *confirmTx) GetRegistrationForUpdate(ctx context.Context, id uuid.UUID) (models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	return scanRegistration(t.q.QueryRow(ctx, query, id))
}

func (t *confirmTx) GetDistance(ctx context.Context, id int64) (models.Distance, error) {
	return getDistance(ctx, t.q, id)
}

func (t *confirmTx) GetGoal(ctx context.Context, id int64) (models.Goal, error) {
	return getGoal(ctx, t.q, id)
}

// NextOrdinal reserves the next ordinal for a scope with a single atomic
// upsert. The updated row stays locked until the surrounding transaction
// ends, which serializes same-scope allocations while leaving other scopes
// free to proceed.
func (t *confirmTx) NextOrdinal(ctx context.Context, scope allocator.Scope) (int, error) {
	var priorPaid int
	err := t.q.QueryRow(ctx, `
		INSERT INTO bib_counters (distance_id, goal_id, paid_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (distance_id, goal_id) DO UPDATE
			SET paid_count = bib_counters.paid_count + 1
		RETURNING paid_count - 1`,
		scope.DistanceID, scope.GoalID).Scan(&priorPaid)
	return priorPaid, err
}

func (t *confirmTx) MarkPaid(ctx context.Context, id uuid.UUID, bib string, paidAt time.Time, artifact []byte) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE registrations
		SET payment_status = $2, bib_number = $3, payment_date = $4, checkin_credential = $5, updated_at = $4
		WHERE id = $1 AND payment_status = $6`,
		id, models.PaymentPaid, bib, paidAt, artifact, models.PaymentPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %s is no longer PENDING", id)
	}
	return nil
}

func (t *confirmTx) InsertPaymentRecord(ctx context.Context, rec models.PaymentRecord) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payment_records (id, registration_id, external_txn_id, amount, gateway, raw_signal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID,
		rec.RegistrationID,
		rec.ExternalTxnID,
		rec.Amount,
		rec.Gateway,
		rec.RawSignal,
		rec.CreatedAt,
	)
	return err
}
