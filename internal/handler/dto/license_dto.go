package dto

import (
	"time"

	"github.com/makkenzo/keybind/internal/domain/license"
)

type VerifyRequest struct {
	Key       string `json:"key" binding:"max=64"`
	MachineID string `json:"machine_id" binding:"max=256"`
}

type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Code     string `json:"code,omitempty"`
	Type     string `json:"type,omitempty"`
	DaysLeft *int   `json:"days_left,omitempty"`
	Note     string `json:"note,omitempty"`
}

func NewVerifyResponse(res *license.VerificationResult) *VerifyResponse {
	if !res.Valid {
		return &VerifyResponse{
			Valid:  false,
			Reason: res.Reason.Message(),
			Code:   string(res.Reason),
		}
	}
	return &VerifyResponse{
		Valid:    true,
		Type:     string(res.Type),
		DaysLeft: res.DaysLeft,
		Note:     res.Note,
	}
}

type CreateLicensesRequest struct {
	Type  string `json:"type" binding:"omitempty,oneof=lifetime trial"`
	Note  string `json:"note" binding:"max=1024"`
	Count int    `json:"count"`
}

type CreateLicensesResponse struct {
	Created []string `json:"created"`
	Count   int      `json:"count"`
}

type ListLicensesResponse struct {
	Keys  map[string]*license.Record `json:"keys"`
	Total int                        `json:"total"`
}

func NewListLicensesResponse(records []*license.Record) *ListLicensesResponse {
	resp := &ListLicensesResponse{
		Keys:  make(map[string]*license.Record, len(records)),
		Total: len(records),
	}
	for _, rec := range records {
		resp.Keys[rec.Key] = rec
	}
	return resp
}

type RevokeLicenseRequest struct {
	Key string `json:"key" binding:"max=64"`
}

type RevokeLicenseResponse struct {
	Revoked string `json:"revoked"`
}

type StatsResponse struct {
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type"`
	Bound        int            `json:"bound"`
	Revoked      int            `json:"revoked"`
	ExpiredTrial int            `json:"expired_trial"`
	ServerTime   time.Time      `json:"server_time"`
}

func NewStatsResponse(sum *license.Summary, now time.Time) *StatsResponse {
	byType := make(map[string]int, len(sum.ByType))
	for t, n := range sum.ByType {
		byType[string(t)] = n
	}
	return &StatsResponse{
		Total:        sum.Total,
		ByType:       byType,
		Bound:        sum.Bound,
		Revoked:      sum.Revoked,
		ExpiredTrial: sum.ExpiredTrial,
		ServerTime:   now,
	}
}
