package models

// Conversation summarizes one chat that was active on the requested day.
// Name keeps the raw stored identifier; DisplayName is the resolved,
// human-readable title.
type Conversation struct {
	ID                 int64    `json:"chat_id"`
	GUID               string   `json:"guid,omitempty"`
	Name               string   `json:"name,omitempty"`
	DisplayName        string   `json:"display_name"`
	Handles            []string `json:"handles"`
	IsGroup            bool     `json:"is_group"`
	MessageCount       int      `json:"message_count"`
	Years              []int    `json:"years"`
	LastMessagePreview string   `json:"last_message_preview"`
	LastMessageDate    string   `json:"last_message_date,omitempty"`
}

// DayListing is the response envelope for the conversations-on-a-day
// listing.
type DayListing struct {
	Month         int            `json:"month"`
	Day           int            `json:"day"`
	Conversations []Conversation `json:"conversations"`
}

// Timeline is a single conversation's messages for one calendar day,
// grouped by year ascending.
type Timeline struct {
	ChatID      int64       `json:"chat_id"`
	DisplayName string      `json:"display_name"`
	Handles     []string    `json:"handles"`
	IsGroup     bool        `json:"is_group"`
	Month       int         `json:"month"`
	Day         int         `json:"day"`
	YearGroups  []YearGroup `json:"year_groups"`
}
