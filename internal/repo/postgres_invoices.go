package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

const invoiceColumns = `id, name, phone, email, tax_id, address, due_date, amount_cents, status,
	alert_level, attachment_ref, notified, last_notified_at, last_delivery, notes, created_at`

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	phone            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	tax_id           TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	due_date         TIMESTAMPTZ NOT NULL,
	amount_cents     BIGINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'PENDING',
	alert_level      TEXT NOT NULL DEFAULT 'NORMAL',
	attachment_ref   TEXT NOT NULL DEFAULT '',
	notified         BOOLEAN NOT NULL DEFAULT false,
	last_notified_at TIMESTAMPTZ,
	last_delivery    JSONB,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS invoices_status_due_idx ON invoices (status, due_date);
`

type PostgresInvoiceRepo struct {
	db *sql.DB
}

// OpenPostgres opens a pgx-backed *sql.DB.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresInvoiceRepo(db *sql.DB) *PostgresInvoiceRepo {
	return &PostgresInvoiceRepo{db: db}
}

func (r *PostgresInvoiceRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *PostgresInvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	prepareNew(inv, time.Now())

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO invoices (name, phone, email, tax_id, address, due_date, amount_cents,
		                      status, alert_level, attachment_ref, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, inv.Name, inv.Phone, inv.Email, inv.TaxID, inv.Address, inv.DueDate, inv.AmountCents,
		string(inv.Status), string(inv.AlertLevel), inv.AttachmentRef, inv.Notes, inv.CreatedAt,
	).Scan(&id)
	if err != nil {
		return err
	}

	inv.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *PostgresInvoiceRepo) Get(ctx context.Context, id string) (model.Invoice, error) {
	pk, err := parseID(id)
	if err != nil {
		return model.Invoice{}, err
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, pk)
	return scanInvoice(row)
}

func (r *PostgresInvoiceRepo) List(ctx context.Context, f ListFilter) ([]model.Invoice, error) {
	f = f.normalized()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		ORDER BY due_date ASC, id ASC
		LIMIT $2 OFFSET $3
	`, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PostgresInvoiceRepo) MarkPaid(ctx context.Context, id string) (model.Invoice, error) {
	pk, err := parseID(id)
	if err != nil {
		return model.Invoice{}, err
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE invoices
		SET status = 'PAID', alert_level = 'NORMAL'
		WHERE id = $1
		RETURNING `+invoiceColumns, pk)
	return scanInvoice(row)
}

func (r *PostgresInvoiceRepo) RecordDelivery(ctx context.Context, id string, rec model.DeliveryRecord) error {
	pk, err := parseID(id)
	if err != nil {
		return err
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET last_delivery = $2,
		    notified = notified OR $3,
		    last_notified_at = CASE WHEN $3 THEN $4 ELSE last_notified_at END
		WHERE id = $1
	`, pk, b, notifies(rec), rec.At.UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *PostgresInvoiceRepo) DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status IN ('PENDING', 'OVERDUE')
		  AND due_date <= $1
		ORDER BY due_date ASC
	`, now.Add(window).UTC())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PostgresInvoiceRepo) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, level model.AlertLevel) error {
	pk, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2, alert_level = $3
		WHERE id = $1
	`, pk, string(status), string(level))
	if err != nil {
		return err
	}
	return expectOne(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (model.Invoice, error) {
	var (
		inv          model.Invoice
		id           int64
		status       string
		level        string
		lastNotified sql.NullTime
		lastDelivery []byte
	)

	err := row.Scan(
		&id,
		&inv.Name,
		&inv.Phone,
		&inv.Email,
		&inv.TaxID,
		&inv.Address,
		&inv.DueDate,
		&inv.AmountCents,
		&status,
		&level,
		&inv.AttachmentRef,
		&inv.Notified,
		&lastNotified,
		&lastDelivery,
		&inv.Notes,
		&inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invoice{}, ErrNotFound
	}
	if err != nil {
		return model.Invoice{}, err
	}

	inv.ID = strconv.FormatInt(id, 10)
	inv.Status = model.InvoiceStatus(status)
	inv.AlertLevel = model.AlertLevel(level)
	if lastNotified.Valid {
		t := lastNotified.Time
		inv.LastNotifiedAt = &t
	}
	if len(lastDelivery) > 0 {
		var rec model.DeliveryRecord
		if err := json.Unmarshal(lastDelivery, &rec); err != nil {
			return model.Invoice{}, err
		}
		inv.LastDelivery = &rec
	}
	return inv, nil
}

func collect(rows *sql.Rows) ([]model.Invoice, error) {
	defer rows.Close()

	out := []model.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// parseID maps malformed ids to ErrNotFound.
func parseID(id string) (int64, error) {
	pk, err := strconv.ParseInt(id, 10, 64)
	if err != nil || pk <= 0 {
		return 0, ErrNotFound
	}
	return pk, nil
}
