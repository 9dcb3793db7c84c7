package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"retrospect/pkg/models"
	utils "retrospect/tests/utils"
)

// TestServerProcessFullFlow boots the real binary against a fixture
// archive and walks the read path end to end.
func TestServerProcessFullFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}

	sp := utils.StartServerProcess(t, utils.ServerOpts{
		SetupWorkdir: func(workdir string) error {
			utils.WriteArchiveFixture(t, filepath.Join(workdir, "chat.db"), "")
			return nil
		},
	})
	defer sp.Stop(t)

	url := fmt.Sprintf("%s/v1/conversations?month=%d&day=%d", sp.Addr, utils.FixtureMonth, utils.FixtureDay)
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET conversations: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", res.StatusCode)
	}
	var listing models.DayListing
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Conversations) != 2 {
		t.Fatalf("got %d conversations, want 2", len(listing.Conversations))
	}

	tlURL := fmt.Sprintf("%s/v1/conversations/%d/messages?month=%d&day=%d",
		sp.Addr, listing.Conversations[0].ID, utils.FixtureMonth, utils.FixtureDay)
	tres, err := http.Get(tlURL)
	if err != nil {
		t.Fatalf("GET timeline: %v", err)
	}
	defer tres.Body.Close()
	if tres.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d, want 200", tres.StatusCode)
	}
	var tl models.Timeline
	if err := json.NewDecoder(tres.Body).Decode(&tl); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(tl.YearGroups) == 0 {
		t.Fatalf("empty timeline for active conversation")
	}

	mres, err := http.Get(sp.Addr + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer mres.Body.Close()
	if mres.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d, want 200", mres.StatusCode)
	}
}
