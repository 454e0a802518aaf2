package dto

import "time"

type HealthResponse struct {
	Status       string            `json:"status"`
	TotalKeys    int               `json:"total_keys"`
	ServerTime   time.Time         `json:"server_time"`
	Dependencies map[string]string `json:"dependencies"`
}
