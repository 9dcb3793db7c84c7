package models

// Tapback is a reaction attached to a message. Type codes 2000-2005 map to
// loved, liked, disliked, laughed, emphasized and questioned.
type Tapback struct {
	Type   int    `json:"type"`
	Emoji  string `json:"emoji"`
	FromMe bool   `json:"from_me"`
}

// Attachment describes one file attached to a message. URL points at the
// serving endpoint, not the on-disk path.
type Attachment struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url"`
}

// Message is one reconstructed archive message.
type Message struct {
	ID          int64        `json:"id"`
	GUID        string       `json:"guid,omitempty"`
	Text        string       `json:"text"`
	IsFromMe    bool         `json:"is_from_me"`
	Date        string       `json:"date"`
	DateRead    string       `json:"date_read,omitempty"`
	Year        int          `json:"year"`
	Sender      string       `json:"sender,omitempty"`
	Handle      string       `json:"handle,omitempty"`
	Attachments []Attachment `json:"attachments"`
	Tapbacks    []Tapback    `json:"tapbacks"`
}

// YearGroup collects the messages of one calendar year, oldest first.
type YearGroup struct {
	Year     int       `json:"year"`
	Messages []Message `json:"messages"`
}
