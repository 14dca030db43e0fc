package models

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// SnapshotMeta describes one persisted revision without its payload.
type SnapshotMeta struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

var snapshotIDPattern = regexp.MustCompile(`^state-(\d+)-([0-9a-f]{8})\.json$`)

// NewSnapshotID returns an id of the form state-<timestamp>-<suffix>.json.
func NewSnapshotID(timestamp int64) string {
	return fmt.Sprintf("state-%d-%s.json", timestamp, uuid.NewString()[:8])
}

// ParseSnapshotID validates id and extracts its timestamp. Ids double as file
// names in the file backend, so anything outside the pattern is rejected.
func ParseSnapshotID(id string) (int64, bool) {
	m := snapshotIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
