package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"retrospect/pkg/archive"
	"retrospect/pkg/contacts"
	"retrospect/pkg/models"
	"retrospect/pkg/utils"
)

// Conversations serves the day listing.
type Conversations struct {
	Archive  *archive.Store
	Contacts *contacts.Resolver
}

// Register registers conversation routes on the provided router.
func (h *Conversations) Register(r *mux.Router) {
	r.HandleFunc("/conversations", h.list).Methods(http.MethodGet)
}

// list handles GET /conversations?month=<m>&day=<d>. Month and day
// default to today.
func (h *Conversations) list(w http.ResponseWriter, r *http.Request) {
	month, day, err := parseMonthDay(r)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversations := h.Archive.ConversationsOn(r.Context(), month, day)
	for i := range conversations {
		c := &conversations[i]
		c.DisplayName = h.Contacts.ResolveConversationName(c.Name, c.Handles, c.IsGroup)
	}

	_ = utils.JSONWrite(w, http.StatusOK, models.DayListing{
		Month:         month,
		Day:           day,
		Conversations: conversations,
	})
}
