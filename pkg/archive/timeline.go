package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"retrospect/pkg/logger"
	"retrospect/pkg/models"
	"retrospect/pkg/telemetry"
	"retrospect/pkg/timeutil"
	"retrospect/pkg/typedstream"
)

// tapbackEmoji maps reaction type codes to their display emoji.
var tapbackEmoji = map[int]string{
	2000: "❤️", // loved
	2001: "\U0001F44D",   // liked
	2002: "\U0001F44E",   // disliked
	2003: "\U0001F602",   // laughed
	2004: "‼️", // emphasized
	2005: "❓",       // questioned
}

// tapbackGUIDPrefixes are the reference prefixes Messages prepends to the
// target guid of a reaction.
var tapbackGUIDPrefixes = []string{"p:0/", "p:1/", "bp:"}

func stripTapbackPrefix(guid string) string {
	for _, prefix := range tapbackGUIDPrefixes {
		if strings.HasPrefix(guid, prefix) {
			return guid[len(prefix):]
		}
	}
	return guid
}

type messageRow struct {
	ID        int64
	GUID      sql.NullString
	Text      sql.NullString
	Blob      []byte
	IsFromMe  sql.NullInt64
	Date      sql.NullInt64
	DateRead  sql.NullInt64
	AssocGUID sql.NullString
	AssocType sql.NullInt64
	Handle    sql.NullString
	Year      sql.NullString
}

type tapbackEntry struct {
	Type   int
	FromMe bool
}

// TimelineOn reconstructs one conversation's messages for the given
// month/day across all years, grouped by year ascending and chronological
// within each year. Reactions fold into their target messages; reaction
// retractions are dropped. ErrNotFound is returned only when the
// conversation does not exist; a failed chat lookup surfaces as an error,
// and per-subquery failures degrade to partial results.
func (s *Store) TimelineOn(ctx context.Context, chatID int64, month, day int) (*models.Timeline, error) {
	done := telemetry.StartSpan(ctx, "archive.timeline")
	defer done()

	var displayName, identifier sql.NullString
	var style sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, style, chat_identifier FROM chat WHERE ROWID = ?`,
		chatID).Scan(&displayName, &style, &identifier)
	switch {
	case err == sql.ErrNoRows:
		return nil, ErrNotFound
	case err != nil:
		// without the chat row there is nothing to build on; this is a
		// store failure, not a missing conversation
		logger.Error("timeline_chat_lookup_failed", "conversation", chatID, "error", err)
		telemetry.DegradedInc("timeline.chat")
		return nil, fmt.Errorf("chat lookup for conversation %d: %w", chatID, err)
	}

	name := displayName.String
	if name == "" {
		name = identifier.String
	}
	timeline := &models.Timeline{
		ChatID:      chatID,
		DisplayName: name,
		Handles:     s.handlesFor(ctx, chatID),
		IsGroup:     style.Int64 == groupChatStyle,
		Month:       month,
		Day:         day,
		YearGroups:  []models.YearGroup{},
	}

	rows := s.messagesOn(ctx, chatID, timeutil.MonthDayKey(month, day))
	if len(rows) == 0 {
		return timeline, nil
	}

	tapbacks := map[string][]tapbackEntry{}
	var primaries []messageRow
	for _, row := range rows {
		assoc := int(row.AssocType.Int64)
		switch {
		case assoc >= 2000 && assoc <= 2005:
			guid := stripTapbackPrefix(row.AssocGUID.String)
			tapbacks[guid] = append(tapbacks[guid], tapbackEntry{Type: assoc, FromMe: row.IsFromMe.Int64 != 0})
		case assoc >= 3000:
			// reaction retraction, never surfaced
		default:
			primaries = append(primaries, row)
		}
	}

	groups := map[int][]models.Message{}
	var years []int
	for _, row := range primaries {
		msg := s.buildMessage(ctx, row, tapbacks)
		if _, seen := groups[msg.Year]; !seen {
			years = append(years, msg.Year)
		}
		groups[msg.Year] = append(groups[msg.Year], msg)
	}
	sort.Ints(years)
	for _, y := range years {
		timeline.YearGroups = append(timeline.YearGroups, models.YearGroup{Year: y, Messages: groups[y]})
	}
	return timeline, nil
}

// messagesOn fetches the raw qualifying rows in chronological order,
// empty on failure.
func (s *Store) messagesOn(ctx context.Context, chatID int64, key string) []messageRow {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			m.ROWID,
			m.guid,
			m.text,
			m.attributedBody,
			m.is_from_me,
			m.date,
			m.date_read,
			m.associated_message_guid,
			m.associated_message_type,
			h.id,
			strftime('%Y',
				datetime(m.date / 1000000000 + 978307200, 'unixepoch', 'localtime')) AS year
		FROM message m
		JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		LEFT JOIN handle h ON h.ROWID = m.handle_id
		WHERE cmj.chat_id = ? AND `+dayPredicate+` = ?
		ORDER BY m.date ASC`, chatID, key)
	if err != nil {
		logger.Error("timeline_messages_failed", "conversation", chatID, "day", key, "error", err)
		telemetry.DegradedInc("timeline.messages")
		return nil
	}
	defer rows.Close()

	var out []messageRow
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.GUID, &row.Text, &row.Blob, &row.IsFromMe,
			&row.Date, &row.DateRead, &row.AssocGUID, &row.AssocType, &row.Handle, &row.Year); err != nil {
			logger.Warn("timeline_row_skipped", "conversation", chatID, "error", err)
			telemetry.DegradedInc("timeline.messages")
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		logger.Error("timeline_messages_failed", "conversation", chatID, "day", key, "error", err)
		telemetry.DegradedInc("timeline.messages")
	}
	return out
}

func (s *Store) buildMessage(ctx context.Context, row messageRow, tapbacks map[string][]tapbackEntry) models.Message {
	text := sanitizeText(row.Text.String)
	if text == "" && len(row.Blob) > 0 {
		res := typedstream.Extract(row.Blob)
		telemetry.ExtractionInc(res.Status.String(), res.FromFallback)
		text = res.Text
	}

	year := 0
	if y, err := strconv.Atoi(row.Year.String); err == nil {
		year = y
	} else if t, ok := timeutil.FromAppleNanos(row.Date.Int64); ok {
		year = t.Local().Year()
	}

	msg := models.Message{
		ID:          row.ID,
		GUID:        row.GUID.String,
		Text:        text,
		IsFromMe:    row.IsFromMe.Int64 != 0,
		Year:        year,
		Handle:      row.Handle.String,
		Attachments: s.attachmentsFor(ctx, row.ID),
		Tapbacks:    []models.Tapback{},
	}
	if iso, ok := timeutil.AppleNanosToISO(row.Date.Int64); ok {
		msg.Date = iso
	}
	if iso, ok := timeutil.AppleNanosToISO(row.DateRead.Int64); ok {
		msg.DateRead = iso
	}
	for _, tb := range tapbacks[row.GUID.String] {
		msg.Tapbacks = append(msg.Tapbacks, models.Tapback{
			Type:   tb.Type,
			Emoji:  tapbackEmoji[tb.Type],
			FromMe: tb.FromMe,
		})
	}
	return msg
}
