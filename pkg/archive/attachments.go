package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"retrospect/pkg/logger"
	"retrospect/pkg/models"
	"retrospect/pkg/telemetry"
)

// attachmentsFor lists the attachments of one message, empty on failure.
// The display filename prefers the sender-supplied transfer name over the
// stored path.
func (s *Store) attachmentsFor(ctx context.Context, messageID int64) []models.Attachment {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.ROWID, a.filename, a.mime_type, a.transfer_name
		FROM attachment a
		JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
		WHERE maj.message_id = ?`, messageID)
	if err != nil {
		logger.Warn("attachments_query_failed", "message", messageID, "error", err)
		telemetry.DegradedInc("timeline.attachments")
		return []models.Attachment{}
	}
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		var id int64
		var filename, mime, transfer sql.NullString
		if err := rows.Scan(&id, &filename, &mime, &transfer); err != nil {
			continue
		}
		name := transfer.String
		if name == "" {
			name = filename.String
		}
		if name == "" {
			name = "attachment"
		}
		attachments = append(attachments, models.Attachment{
			ID:       id,
			Filename: name,
			MimeType: mime.String,
			URL:      fmt.Sprintf("/v1/attachments/%d", id),
		})
	}
	if err := rows.Err(); err != nil {
		logger.Warn("attachments_query_failed", "message", messageID, "error", err)
		telemetry.DegradedInc("timeline.attachments")
	}
	return attachments
}

// AttachmentPath resolves an attachment id to its filesystem path and
// stored MIME type. The stored path has its leading home token expanded
// and percent-encoded characters decoded. ErrNotFound is returned when
// the row or its filename is missing.
func (s *Store) AttachmentPath(ctx context.Context, id int64) (string, string, error) {
	done := telemetry.StartSpan(ctx, "archive.attachment_path")
	defer done()

	var filename, mime sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, mime_type FROM attachment WHERE ROWID = ?`,
		id).Scan(&filename, &mime)
	switch {
	case err == sql.ErrNoRows:
		return "", "", ErrNotFound
	case err != nil:
		logger.Warn("attachment_lookup_failed", "attachment", id, "error", err)
		telemetry.DegradedInc("attachments.lookup")
		return "", "", ErrNotFound
	}
	if filename.String == "" {
		return "", "", ErrNotFound
	}

	path := expandHome(filename.String)
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	} else {
		logger.Debug("attachment_path_undecodable", "attachment", id, "error", err)
	}
	return path, mime.String, nil
}

// expandHome replaces a leading "~" with the current home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
