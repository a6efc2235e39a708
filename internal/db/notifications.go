package db

import (
	"context"
	"fmt"

	"github.com/supsol/poreview/internal/models"
)

// NotificationAuditTypes are the audit types announced over WhatsApp.
var NotificationAuditTypes = []int{300, 900, 1500, 2100}

const notificationDone = 999

// ListPendingNotifications groups unsent notification audits by PO.
func (s *Store) ListPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT po.wpq_number, COALESCE(po.po_number, ''), COALESCE(po.vendor_name, ''), COALESCE(po.vendor_phone, ''),
			COALESCE(po.vendor_email, ''), COALESCE(po.vendor_language, ''), COALESCE(po.vendor_country, ''),
			COALESCE(po.supporter_name, ''), COALESCE(po.supporter_phone, ''),
			array_agg(na.id ORDER BY na.id)
		FROM notification_audits na
		JOIN purchase_orders po ON po.wpq_number = na.wpq_number
		WHERE na.audit_type_id = ANY($1)
		AND na.execution_status <> $2
		AND po.status = $3
		GROUP BY po.wpq_number
		ORDER BY po.wpq_number
		LIMIT $4`, NotificationAuditTypes, notificationDone, models.POStatusOpen, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.WPQNumber, &n.PONumber, &n.VendorName, &n.VendorPhone, &n.VendorEmail,
			&n.VendorLanguage, &n.VendorCountry, &n.SupporterName, &n.SupporterPhone, &n.AuditLogIDs); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsSent closes the given audits with the message sid that
// delivered them.
func (s *Store) MarkNotificationsSent(ctx context.Context, ids []int64, messageSID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE notification_audits
		SET execution_status = $1, message_sid = $2
		WHERE id = ANY($3) AND execution_status <> $1`, notificationDone, messageSID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AddNotificationAudit records an upstream notification audit.
func (s *Store) AddNotificationAudit(ctx context.Context, wpq string, auditTypeID int) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx, `INSERT INTO notification_audits (wpq_number, audit_type_id) VALUES ($1, $2) RETURNING id`, wpq, auditTypeID).Scan(&id)
	return id, err
}
