package archive

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"

	"retrospect/pkg/logger"
	"retrospect/pkg/models"
	"retrospect/pkg/telemetry"
	"retrospect/pkg/timeutil"
	"retrospect/pkg/typedstream"
)

// groupChatStyle is the chat.style value Messages uses for group chats.
const groupChatStyle = 43

// previewRunes caps the last-message preview length.
const previewRunes = 100

// dayPredicate matches messages whose local calendar day equals the MM-DD
// key, independent of year.
const dayPredicate = `strftime('%m-%d',
	datetime(m.date / 1000000000 + 978307200, 'unixepoch', 'localtime'))`

type conversationRow struct {
	ChatID       int64
	GUID         sql.NullString
	DisplayName  sql.NullString
	Identifier   sql.NullString
	Style        sql.NullInt64
	MessageCount int
	Years        sql.NullString
	LastDate     sql.NullInt64
}

// ConversationsOn lists every conversation with at least one message on
// the given month/day in any year, most recently active first. Failures
// degrade: sub-queries contribute empty fields and a broken listing query
// yields an empty slice.
func (s *Store) ConversationsOn(ctx context.Context, month, day int) []models.Conversation {
	done := telemetry.StartSpan(ctx, "archive.conversations")
	defer done()

	key := timeutil.MonthDayKey(month, day)
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.ROWID,
			c.guid,
			c.display_name,
			c.chat_identifier,
			c.style,
			COUNT(DISTINCT m.ROWID) AS message_count,
			GROUP_CONCAT(DISTINCT strftime('%Y',
				datetime(m.date / 1000000000 + 978307200, 'unixepoch', 'localtime'))) AS years,
			MAX(m.date) AS last_date
		FROM chat c
		JOIN chat_message_join cmj ON cmj.chat_id = c.ROWID
		JOIN message m ON m.ROWID = cmj.message_id
		WHERE `+dayPredicate+` = ?
		GROUP BY c.ROWID
		ORDER BY last_date DESC`, key)
	if err != nil {
		logger.Error("conversation_listing_failed", "day", key, "error", err)
		telemetry.DegradedInc("conversations.list")
		return []models.Conversation{}
	}
	defer rows.Close()

	var convRows []conversationRow
	for rows.Next() {
		var row conversationRow
		if err := rows.Scan(&row.ChatID, &row.GUID, &row.DisplayName, &row.Identifier,
			&row.Style, &row.MessageCount, &row.Years, &row.LastDate); err != nil {
			logger.Warn("conversation_row_skipped", "day", key, "error", err)
			telemetry.DegradedInc("conversations.list")
			continue
		}
		convRows = append(convRows, row)
	}
	if err := rows.Err(); err != nil {
		logger.Error("conversation_listing_failed", "day", key, "error", err)
		telemetry.DegradedInc("conversations.list")
	}

	conversations := make([]models.Conversation, 0, len(convRows))
	for _, row := range convRows {
		name := row.DisplayName.String
		if name == "" {
			name = row.Identifier.String
		}
		conv := models.Conversation{
			ID:           row.ChatID,
			GUID:         row.GUID.String,
			Name:         name,
			DisplayName:  name,
			Handles:      s.handlesFor(ctx, row.ChatID),
			IsGroup:      row.Style.Int64 == groupChatStyle,
			MessageCount: row.MessageCount,
			Years:        parseYears(row.Years.String),
		}
		if iso, ok := timeutil.AppleNanosToISO(row.LastDate.Int64); ok {
			conv.LastMessageDate = iso
		}
		conv.LastMessagePreview = truncateRunes(s.previewFor(ctx, row.ChatID, key), previewRunes)
		conversations = append(conversations, conv)
	}
	return conversations
}

// handlesFor returns the raw participant handles of a chat, empty on
// failure.
func (s *Store) handlesFor(ctx context.Context, chatID int64) []string {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id
		FROM handle h
		JOIN chat_handle_join chj ON chj.handle_id = h.ROWID
		WHERE chj.chat_id = ?`, chatID)
	if err != nil {
		logger.Warn("conversation_handles_failed", "conversation", chatID, "error", err)
		telemetry.DegradedInc("conversations.handles")
		return []string{}
	}
	defer rows.Close()

	handles := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			continue
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		logger.Warn("conversation_handles_failed", "conversation", chatID, "error", err)
		telemetry.DegradedInc("conversations.handles")
	}
	return handles
}

// previewFor returns the text of the most recent qualifying message,
// extracting from the attributedBody blob when the plain column is empty.
// Empty on failure.
func (s *Store) previewFor(ctx context.Context, chatID int64, key string) string {
	var text sql.NullString
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT m.text, m.attributedBody
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		WHERE cmj.chat_id = ? AND `+dayPredicate+` = ?
		ORDER BY m.date DESC
		LIMIT 1`, chatID, key).Scan(&text, &blob)
	switch {
	case err == sql.ErrNoRows:
		return ""
	case err != nil:
		logger.Warn("conversation_preview_failed", "conversation", chatID, "error", err)
		telemetry.DegradedInc("conversations.preview")
		return ""
	}

	if text.String != "" {
		return sanitizeText(text.String)
	}
	if len(blob) > 0 {
		res := typedstream.Extract(blob)
		telemetry.ExtractionInc(res.Status.String(), res.FromFallback)
		return res.Text
	}
	return ""
}

// parseYears splits the GROUP_CONCAT year list and sorts it descending.
// SQLite does not define the concat order, so ordering happens here.
func parseYears(concat string) []int {
	years := []int{}
	for _, part := range strings.Split(concat, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
