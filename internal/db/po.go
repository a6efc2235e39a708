package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/supsol/poreview/internal/models"
)

const poColumns = `wpq_number, COALESCE(po_number, ''), created_at, COALESCE(urgency_type, ''), status,
	COALESCE(vendor_id, ''), COALESCE(vendor_name, ''), COALESCE(vendor_email, ''), COALESCE(vendor_phone, ''),
	COALESCE(vendor_language, ''), COALESCE(vendor_country, ''), vendor_setup_completed,
	COALESCE(supporter_name, ''), COALESCE(supporter_email, ''), COALESCE(supporter_phone, ''), escalation_level`

func scanPO(row pgx.Row) (models.PurchaseOrder, error) {
	var p models.PurchaseOrder
	err := row.Scan(&p.WPQNumber, &p.PONumber, &p.CreatedAt, &p.UrgencyType, &p.Status,
		&p.VendorID, &p.VendorName, &p.VendorEmail, &p.VendorPhone,
		&p.VendorLanguage, &p.VendorCountry, &p.VendorSetupCompleted,
		&p.SupporterName, &p.SupporterEmail, &p.SupporterPhone, &p.EscalationLevel)
	return p, err
}

// ListOpenPOs returns open POs that carry a PO number, optionally narrowed
// to one WPQ number.
func (s *Store) ListOpenPOs(ctx context.Context, wpq string) ([]models.PurchaseOrder, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+poColumns+`
		FROM purchase_orders
		WHERE status = $1
		AND po_number IS NOT NULL AND po_number <> ''
		AND ($2 = '' OR wpq_number = $2)
		ORDER BY created_at ASC, wpq_number ASC`, models.POStatusOpen, wpq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PurchaseOrder
	for rows.Next() {
		p, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPO(ctx context.Context, wpq string) (models.PurchaseOrder, error) {
	p, err := scanPO(s.Pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE wpq_number = $1`, wpq))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PurchaseOrder{}, fmt.Errorf("po %s: %w", wpq, ErrNotFound)
	}
	return p, err
}

func (s *Store) ListLineItems(ctx context.Context, wpq string) ([]models.LineItem, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, wpq_number, COALESCE(description, ''), initial_execution_date, current_execution_date,
			requested_execution_date, purchase_price
		FROM line_items
		WHERE wpq_number = $1
		ORDER BY id ASC`, wpq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LineItem
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ItemID, &it.WPQNumber, &it.Description, &it.InitialExecutionDate,
			&it.CurrentExecutionDate, &it.RequestedExecutionDate, &it.PurchasePrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListHistory returns the communication events of a PO oldest first.
func (s *Store) ListHistory(ctx context.Context, wpq string) ([]models.CommunicationEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, wpq_number, channel, audit_type_id, COALESCE(subject, ''), COALESCE(text, ''),
			COALESCE(english_text, ''), COALESCE(mail_id, ''), response_received, failed,
			COALESCE(error, ''), COALESCE(request_id, ''), created_at
		FROM communication_events
		WHERE wpq_number = $1
		ORDER BY created_at ASC, id ASC`, wpq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CommunicationEvent
	for rows.Next() {
		var ev models.CommunicationEvent
		var ch string
		if err := rows.Scan(&ev.ID, &ev.WPQNumber, &ch, &ev.AuditTypeID, &ev.Subject, &ev.Text,
			&ev.EnglishText, &ev.MailID, &ev.ResponseReceived, &ev.Failed,
			&ev.Error, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Channel = models.Channel(ch)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecordEvent appends ev and, unless the send failed, moves the PO's
// escalation level. Both writes commit together or not at all.
func (s *Store) RecordEvent(ctx context.Context, ev models.CommunicationEvent, level int) (models.CommunicationEvent, error) {
	ev.CreatedAt = utc(ev.CreatedAt)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO communication_events (wpq_number, channel, audit_type_id, subject, text, english_text,
				mail_id, response_received, failed, error, request_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id`,
			ev.WPQNumber, string(ev.Channel), ev.AuditTypeID, ev.Subject, ev.Text, ev.EnglishText,
			nullIfEmpty(ev.MailID), ev.ResponseReceived, ev.Failed, nullIfEmpty(ev.Error), nullIfEmpty(ev.RequestID), ev.CreatedAt,
		).Scan(&ev.ID); err != nil {
			return err
		}
		if ev.Failed || level <= 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE purchase_orders SET escalation_level = $1, updated_at = NOW() WHERE wpq_number = $2`, level, ev.WPQNumber)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("po %s: %w", ev.WPQNumber, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return models.CommunicationEvent{}, fmt.Errorf("record event: %w", err)
	}
	return ev, nil
}

// UpsertPO writes a PO and replaces its line items. It is used by seeding
// and tests; the system of record for POs is upstream.
func (s *Store) UpsertPO(ctx context.Context, p models.PurchaseOrder, items []models.LineItem) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO purchase_orders (wpq_number, po_number, created_at, urgency_type, status, vendor_id, vendor_name,
				vendor_email, vendor_phone, vendor_language, vendor_country, vendor_setup_completed,
				supporter_name, supporter_email, supporter_phone)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (wpq_number) DO UPDATE SET
				po_number = EXCLUDED.po_number,
				urgency_type = EXCLUDED.urgency_type,
				status = EXCLUDED.status,
				vendor_id = EXCLUDED.vendor_id,
				vendor_name = EXCLUDED.vendor_name,
				vendor_email = EXCLUDED.vendor_email,
				vendor_phone = EXCLUDED.vendor_phone,
				vendor_language = EXCLUDED.vendor_language,
				vendor_country = EXCLUDED.vendor_country,
				vendor_setup_completed = EXCLUDED.vendor_setup_completed,
				supporter_name = EXCLUDED.supporter_name,
				supporter_email = EXCLUDED.supporter_email,
				supporter_phone = EXCLUDED.supporter_phone,
				updated_at = NOW()`,
			p.WPQNumber, p.PONumber, utc(p.CreatedAt), p.UrgencyType, p.Status, p.VendorID, p.VendorName,
			p.VendorEmail, p.VendorPhone, p.VendorLanguage, p.VendorCountry, p.VendorSetupCompleted,
			p.SupporterName, p.SupporterEmail, p.SupporterPhone)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE wpq_number = $1`, p.WPQNumber); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(items))
		for _, it := range items {
			rows = append(rows, []any{p.WPQNumber, it.Description, it.InitialExecutionDate, it.CurrentExecutionDate, it.RequestedExecutionDate, it.PurchasePrice})
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"line_items"},
			[]string{"wpq_number", "description", "initial_execution_date", "current_execution_date", "requested_execution_date", "purchase_price"},
			pgx.CopyFromRows(rows))
		return err
	})
}
