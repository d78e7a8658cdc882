package model

import (
	"bytes"
	"strconv"
	"time"
)

// UnixSeconds decodes the channel's unix-second timestamps, which arrive
// either as a JSON number or as a quoted decimal string.
type UnixSeconds struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UnixSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		u.Time = time.Time{}
		return nil
	}
	secs, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	u.Time = time.Unix(secs, 0).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (u UnixSeconds) MarshalJSON() ([]byte, error) {
	if u.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(u.Unix(), 10)), nil
}
