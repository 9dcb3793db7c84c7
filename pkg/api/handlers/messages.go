package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"retrospect/pkg/archive"
	"retrospect/pkg/contacts"
	"retrospect/pkg/convert"
	"retrospect/pkg/logger"
	"retrospect/pkg/utils"
)

// Messages serves a conversation's timeline for one calendar day.
type Messages struct {
	Archive  *archive.Store
	Contacts *contacts.Resolver

	// Prewarm, when set, receives attachment IDs for background
	// conversion so the first image request hits the cache.
	Prewarm *convert.Queue
}

// Register registers timeline routes on the provided router.
func (h *Messages) Register(r *mux.Router) {
	r.HandleFunc("/conversations/{id}/messages", h.timeline).Methods(http.MethodGet)
}

// timeline handles GET /conversations/{id}/messages?month=<m>&day=<d>.
func (h *Messages) timeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r), "id")
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, day, err := parseMonthDay(r)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeline, err := h.Archive.TimelineOn(r.Context(), id, month, day)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		logger.Error("timeline_failed", "conversation", id, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "timeline unavailable")
		return
	}

	timeline.DisplayName = h.Contacts.ResolveConversationName(
		timeline.DisplayName, timeline.Handles, timeline.IsGroup)
	for gi := range timeline.YearGroups {
		msgs := timeline.YearGroups[gi].Messages
		for mi := range msgs {
			m := &msgs[mi]
			if m.IsFromMe {
				m.Sender = "Me"
			} else {
				m.Sender = h.Contacts.ResolveName(m.Handle)
			}
			if h.Prewarm != nil {
				for _, att := range m.Attachments {
					// best-effort; a full queue just means no prewarm
					_ = h.Prewarm.TryEnqueue(convert.Job{AttachmentID: att.ID})
				}
			}
		}
	}

	_ = utils.JSONWrite(w, http.StatusOK, timeline)
}
