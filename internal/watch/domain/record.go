package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// naiveLayout is the timestamp format older tooling wrote without a zone.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// LogTime is a timestamp that serializes as RFC 3339 and also accepts naive
// ISO-8601 timestamps (interpreted as UTC), empty strings and null.
type LogTime struct {
	time.Time
}

// MarshalJSON writes the time as RFC 3339 with nanoseconds, or null when zero.
func (t LogTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON accepts RFC 3339, naive ISO-8601, "" and null.
func (t *LogTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("log_time: %w", err)
	}
	parsed, err := ParseLogTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseLogTime parses s as RFC 3339 or as a naive timestamp in UTC.
// An empty string yields the zero time.
func ParseLogTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("log_time %q: unsupported format", s)
	}
	return ts, nil
}

// BlockRecord is one entry of the append-only block log.
type BlockRecord struct {
	ChannelName string  `json:"channel_name"`
	ChannelURL  string  `json:"channel_url"`
	Title       string  `json:"video_title"`
	ID          string  `json:"video_id"`
	LogTime     LogTime `json:"log_time"`
}

// NewBlockRecord builds a record for entry e stamped with now.
func NewBlockRecord(e ContentEntry, now time.Time) BlockRecord {
	return BlockRecord{
		ChannelName: e.ChannelName,
		ChannelURL:  e.ChannelURL,
		Title:       e.Title,
		ID:          e.ID,
		LogTime:     LogTime{Time: now.UTC()},
	}
}
