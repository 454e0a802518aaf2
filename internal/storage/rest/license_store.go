package rest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/domain/license"
	"go.uber.org/zap"
)

const maxUseRetries = 50

var errUseContended = errors.New("license use counter is contended")

// row mirrors the remote table layout, which matches the postgres schema.
type row struct {
	LicenseKey  string     `json:"license_key"`
	Type        string     `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Revoked     bool       `json:"revoked"`
	MachineID   *string    `json:"machine_id"`
	ActivatedAt *time.Time `json:"activated_at"`
	Uses        int        `json:"uses"`
	LastSeen    *time.Time `json:"last_seen"`
	Note        string     `json:"note"`
}

func toRow(rec *license.Record) row {
	return row{
		LicenseKey:  rec.Key,
		Type:        string(rec.Type),
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
		Revoked:     rec.Revoked,
		MachineID:   rec.MachineID,
		ActivatedAt: rec.ActivatedAt,
		Uses:        rec.Uses,
		LastSeen:    rec.LastSeen,
		Note:        rec.Note,
	}
}

func (r row) toRecord() (*license.Record, error) {
	typ, err := license.ParseType(r.Type)
	if err != nil {
		return nil, fmt.Errorf("corrupt remote row %s: %w", r.LicenseKey, err)
	}
	return &license.Record{
		Key:         r.LicenseKey,
		Type:        typ,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		Revoked:     r.Revoked,
		MachineID:   r.MachineID,
		ActivatedAt: r.ActivatedAt,
		Uses:        r.Uses,
		LastSeen:    r.LastSeen,
		Note:        r.Note,
	}, nil
}

// LicenseStore talks to a PostgREST-compatible HTTP API. The API caps a single
// response at PageSize rows, so List pages with limit/offset.
type LicenseStore struct {
	client   *resty.Client
	table    string
	pageSize int
	logger   *zap.Logger
}

func NewLicenseStore(cfg *config.RESTConfig, timeout time.Duration, logger *zap.Logger) *LicenseStore {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("apikey", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	return &LicenseStore{
		client:   client,
		table:    "/" + cfg.Table,
		pageSize: pageSize,
		logger:   logger.Named("RESTLicenseStore"),
	}
}

var _ license.Store = (*LicenseStore)(nil)

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("rest %s: unexpected status %d: %s", op, resp.StatusCode(), resp.String())
}

func (s *LicenseStore) first(rows []row) (*license.Record, error) {
	if len(rows) == 0 {
		return nil, license.ErrNotFound
	}
	return rows[0].toRecord()
}

func (s *LicenseStore) Get(ctx context.Context, key string) (*license.Record, error) {
	var rows []row
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":      "*",
			"license_key": "eq." + key,
		}).
		SetResult(&rows).
		Get(s.table)
	if err != nil {
		return nil, fmt.Errorf("rest get license: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("get license", resp)
	}
	return s.first(rows)
}

func (s *LicenseStore) Put(ctx context.Context, rec *license.Record) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("on_conflict", "license_key").
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetBody(toRow(rec)).
		Post(s.table)
	if err != nil {
		return fmt.Errorf("rest put license: %w", err)
	}
	if resp.IsError() {
		return statusError("put license", resp)
	}
	return nil
}

func (s *LicenseStore) patch(ctx context.Context, filters map[string]string, body map[string]any) ([]row, error) {
	var rows []row
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(filters).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&rows).
		Patch(s.table)
	if err != nil {
		return nil, fmt.Errorf("rest patch license: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("patch license", resp)
	}
	return rows, nil
}

func patchBody(p license.Patch) map[string]any {
	body := make(map[string]any)
	if p.Revoked != nil {
		body["revoked"] = *p.Revoked
	}
	if p.MachineID != nil {
		body["machine_id"] = *p.MachineID
	}
	if p.ActivatedAt != nil {
		body["activated_at"] = *p.ActivatedAt
	}
	if p.Uses != nil {
		body["uses"] = *p.Uses
	}
	if p.LastSeen != nil {
		body["last_seen"] = *p.LastSeen
	}
	return body
}

func (s *LicenseStore) Patch(ctx context.Context, key string, p license.Patch) error {
	body := patchBody(p)
	if len(body) == 0 {
		_, err := s.Get(ctx, key)
		return err
	}
	rows, err := s.patch(ctx, map[string]string{"license_key": "eq." + key}, body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (s *LicenseStore) List(ctx context.Context) ([]*license.Record, error) {
	records := make([]*license.Record, 0)
	for offset := 0; ; offset += s.pageSize {
		var rows []row
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"select": "*",
				"order":  "created_at.asc",
				"limit":  strconv.Itoa(s.pageSize),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&rows).
			Get(s.table)
		if err != nil {
			return nil, fmt.Errorf("rest list licenses: %w", err)
		}
		if resp.IsError() {
			return nil, statusError("list licenses", resp)
		}

		for _, r := range rows {
			rec, err := r.toRecord()
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if len(rows) < s.pageSize {
			break
		}
	}
	return records, nil
}

func (s *LicenseStore) BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*license.Record, bool, error) {
	rows, err := s.patch(ctx,
		map[string]string{
			"license_key": "eq." + key,
			"or":          "(machine_id.is.null,machine_id.eq.)",
		},
		map[string]any{
			"machine_id":   machineID,
			"activated_at": at,
			"uses":         1,
		},
	)
	if err != nil {
		return nil, false, err
	}
	if len(rows) > 0 {
		rec, err := rows[0].toRecord()
		return rec, err == nil, err
	}

	current, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// RecordUse increments uses with a compare-and-set on the previous value.
func (s *LicenseStore) RecordUse(ctx context.Context, key string, at time.Time) (*license.Record, error) {
	for attempt := 0; attempt < maxUseRetries; attempt++ {
		current, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		rows, err := s.patch(ctx,
			map[string]string{
				"license_key": "eq." + key,
				"uses":        "eq." + strconv.Itoa(current.Uses),
			},
			map[string]any{
				"uses":      current.Uses + 1,
				"last_seen": at,
			},
		)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows[0].toRecord()
		}
		s.logger.Debug("Use counter changed concurrently, retrying", zap.Int("attempt", attempt+1))
	}
	return nil, errUseContended
}
