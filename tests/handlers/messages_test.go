package handlers

import (
	"net/http"
	"testing"

	"retrospect/pkg/models"
	utils "retrospect/tests/utils"
)

func TestTimelineGroupsByYear(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	var tl models.Timeline
	if code := getJSON(t, fixtureURL(srv, "/v1/conversations/1/messages"), &tl); code != http.StatusOK {
		t.Fatalf("status %d, want 200", code)
	}
	if tl.ChatID != 1 || tl.DisplayName != "Alex Chen" {
		t.Fatalf("timeline header: id=%d name=%q", tl.ChatID, tl.DisplayName)
	}
	if len(tl.YearGroups) != 2 {
		t.Fatalf("got %d year groups, want 2", len(tl.YearGroups))
	}
	if tl.YearGroups[0].Year != 2019 || tl.YearGroups[1].Year != 2021 {
		t.Fatalf("years not ascending: %d, %d", tl.YearGroups[0].Year, tl.YearGroups[1].Year)
	}

	y2019 := tl.YearGroups[0].Messages
	if len(y2019) != 2 {
		t.Fatalf("2019 has %d messages, want 2 (tapback must not surface)", len(y2019))
	}
	if y2019[0].Sender != "Alex Chen" {
		t.Fatalf("inbound sender %q, want resolved contact", y2019[0].Sender)
	}
	if !y2019[1].IsFromMe || y2019[1].Sender != "Me" {
		t.Fatalf("outbound message sender %q, want Me", y2019[1].Sender)
	}

	// the tapback lands on its target message
	if len(y2019[0].Tapbacks) != 1 || y2019[0].Tapbacks[0].Emoji == "" {
		t.Fatalf("tapback missing on target message: %+v", y2019[0].Tapbacks)
	}

	// blob-only 2021 message decodes through the extractor
	y2021 := tl.YearGroups[1].Messages
	if len(y2021) != 1 || y2021[0].Text != "From the archive" {
		t.Fatalf("2021 blob message: %+v", y2021)
	}
}

func TestTimelineAttachmentsCarryServingURL(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	var tl models.Timeline
	if code := getJSON(t, fixtureURL(srv, "/v1/conversations/2/messages"), &tl); code != http.StatusOK {
		t.Fatalf("status %d, want 200", code)
	}
	if len(tl.YearGroups) != 1 || len(tl.YearGroups[0].Messages) != 1 {
		t.Fatalf("unexpected group timeline shape: %+v", tl.YearGroups)
	}
	msg := tl.YearGroups[0].Messages[0]
	if len(msg.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(msg.Attachments))
	}
	if msg.Attachments[0].URL != "/v1/attachments/1" {
		t.Fatalf("attachment URL %q", msg.Attachments[0].URL)
	}
	if msg.Attachments[0].Filename != "photo.png" {
		t.Fatalf("attachment filename %q, want transfer name", msg.Attachments[0].Filename)
	}
}

func TestTimelineUnknownConversation(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	if code := getJSON(t, fixtureURL(srv, "/v1/conversations/999/messages"), nil); code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", code)
	}
}

func TestTimelineEmptyDayIsNotAnError(t *testing.T) {
	srv, _ := utils.SetupServer(t, "")
	defer srv.Close()

	var tl models.Timeline
	code := getJSON(t, srv.URL+"/v1/conversations/1/messages?month=1&day=2", &tl)
	if code != http.StatusOK {
		t.Fatalf("status %d, want 200", code)
	}
	if len(tl.YearGroups) != 0 {
		t.Fatalf("expected empty year groups, got %+v", tl.YearGroups)
	}
}
