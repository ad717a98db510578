package types

// Domain references are read-only foreign objects owned by the host reading
// app. This subsystem associates with them by identity and consumes a small
// surface for ranking and rendering; it never mutates them.

// BookRef identifies a book in the host library.
type BookRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NoteRef identifies a user note.
type NoteRef struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsFavorite bool   `json:"is_favorite"`
}

// QuoteRef identifies a saved quote.
type QuoteRef struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsFavorite bool   `json:"is_favorite"`
}
