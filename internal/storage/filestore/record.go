package filestore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
)

// naiveLayouts cover ISO-8601 timestamps written without a zone, which are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// isoTime reads RFC3339 as well as zone-less ISO-8601 timestamps and always writes RFC3339.
type isoTime struct {
	time.Time
}

func parseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *isoTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := parseISOTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t isoTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func toISO(t *time.Time) *isoTime {
	if t == nil {
		return nil
	}
	return &isoTime{Time: *t}
}

func fromISO(t *isoTime) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// fileRecord is the on-disk shape of a license.Record.
type fileRecord struct {
	Key         string       `json:"key,omitempty"`
	Type        license.Type `json:"type"`
	CreatedAt   isoTime      `json:"created_at"`
	ExpiresAt   *isoTime     `json:"expires_at,omitempty"`
	Revoked     bool         `json:"revoked"`
	MachineID   *string      `json:"machine_id"`
	ActivatedAt *isoTime     `json:"activated_at,omitempty"`
	Uses        int          `json:"uses"`
	LastSeen    *isoTime     `json:"last_seen,omitempty"`
	Note        string       `json:"note,omitempty"`
}

func newFileRecord(rec *license.Record) *fileRecord {
	var machineID *string
	if rec.MachineID != nil {
		v := *rec.MachineID
		machineID = &v
	}
	return &fileRecord{
		Key:         rec.Key,
		Type:        rec.Type,
		CreatedAt:   isoTime{Time: rec.CreatedAt},
		ExpiresAt:   toISO(rec.ExpiresAt),
		Revoked:     rec.Revoked,
		MachineID:   machineID,
		ActivatedAt: toISO(rec.ActivatedAt),
		Uses:        rec.Uses,
		LastSeen:    toISO(rec.LastSeen),
		Note:        rec.Note,
	}
}

func (r *fileRecord) toRecord(key string) *license.Record {
	return &license.Record{
		Key:         key,
		Type:        r.Type,
		CreatedAt:   r.CreatedAt.Time,
		ExpiresAt:   fromISO(r.ExpiresAt),
		Revoked:     r.Revoked,
		MachineID:   r.MachineID,
		ActivatedAt: fromISO(r.ActivatedAt),
		Uses:        r.Uses,
		LastSeen:    fromISO(r.LastSeen),
		Note:        r.Note,
	}
}
