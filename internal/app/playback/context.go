package playback

import (
	"encoding/json"
	"time"
)

// Context is a snapshot of the player state used for periodic state reporting.
type Context struct {
	Token    string
	Offset   time.Duration
	Activity Activity
}

type contextJSON struct {
	Token          string `json:"token"`
	OffsetInMillis int64  `json:"offsetInMilliseconds"`
	PlayerActivity string `json:"playerActivity"`
}

// MarshalJSON renders the snapshot with a fixed key order.
func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		Token:          c.Token,
		OffsetInMillis: c.Offset.Milliseconds(),
		PlayerActivity: c.Activity.String(),
	})
}

// String returns the UTF-8 JSON form of the snapshot.
func (c Context) String() string {
	b, err := c.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}
