package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type CursorPage struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// OrderCursor encodes the keyset position of a listing: newest first,
// ordered by (created_at, id) descending.
type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

func DecodeCursor(encoded string) (OrderCursor, error) {
	var cursor OrderCursor
	if encoded == "" {
		// Sentinel above every real (created_at, id) pair.
		return OrderCursor{
			CreatedAt: time.Now().Add(24 * time.Hour),
			ID:        "\uffff",
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}
