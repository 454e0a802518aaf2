package license

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeLifetime Type = "lifetime"
	TypeTrial    Type = "trial"
)

const (
	PrefixLifetime = "F2P"
	PrefixTrial    = "TRY"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeLifetime, TypeTrial:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown license type %q", s)
	}
}

// Prefix returns the key prefix that encodes the license type.
func (t Type) Prefix() string {
	if t == TypeTrial {
		return PrefixTrial
	}
	return PrefixLifetime
}

// Record is the persisted state of a single license key. Key, Type, CreatedAt and
// ExpiresAt never change after creation; MachineID is written once.
type Record struct {
	Key         string     `json:"key"`
	Type        Type       `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Revoked     bool       `json:"revoked"`
	MachineID   *string    `json:"machine_id"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	Uses        int        `json:"uses"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	Note        string     `json:"note,omitempty"`
}

func (r *Record) IsBound() bool {
	return r.MachineID != nil && *r.MachineID != ""
}

func (r *Record) IsExpired(now time.Time) bool {
	return r.Type == TypeTrial && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// DaysLeft returns the whole days remaining before a trial expires, or nil for
// keys that never expire.
func (r *Record) DaysLeft(now time.Time) *int {
	if r.Type != TypeTrial || r.ExpiresAt == nil {
		return nil
	}
	days := int(r.ExpiresAt.Sub(now) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return &days
}

// Patch is a merge update; nil fields are left untouched.
type Patch struct {
	Revoked     *bool
	MachineID   *string
	ActivatedAt *time.Time
	Uses        *int
	LastSeen    *time.Time
}

func (p Patch) Apply(r *Record) {
	if p.Revoked != nil {
		r.Revoked = *p.Revoked
	}
	if p.MachineID != nil {
		id := *p.MachineID
		r.MachineID = &id
	}
	if p.ActivatedAt != nil {
		t := *p.ActivatedAt
		r.ActivatedAt = &t
	}
	if p.Uses != nil {
		r.Uses = *p.Uses
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		r.LastSeen = &t
	}
}

// Clone returns a deep copy so stores never hand out their internal pointers.
func (r *Record) Clone() *Record {
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.MachineID != nil {
		id := *r.MachineID
		c.MachineID = &id
	}
	if r.ActivatedAt != nil {
		t := *r.ActivatedAt
		c.ActivatedAt = &t
	}
	if r.LastSeen != nil {
		t := *r.LastSeen
		c.LastSeen = &t
	}
	return &c
}

// Bind applies the first-use transition to an unbound record.
func (r *Record) Bind(machineID string, at time.Time) {
	id := machineID
	ts := at
	r.MachineID = &id
	r.ActivatedAt = &ts
	r.Uses = 1
}

// Touch applies the repeat-use transition to a bound record.
func (r *Record) Touch(at time.Time) {
	ts := at
	r.Uses++
	r.LastSeen = &ts
}

type Summary struct {
	Total        int          `json:"total"`
	ByType       map[Type]int `json:"by_type"`
	Bound        int          `json:"bound"`
	Revoked      int          `json:"revoked"`
	ExpiredTrial int          `json:"expired_trial"`
}
