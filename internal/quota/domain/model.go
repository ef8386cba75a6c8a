package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CapType string

const (
	CapDBQueriesPerDay           CapType = "db_queries_per_day"
	CapRealtimeConnections       CapType = "realtime_connections"
	CapStorageUploadsPerDay      CapType = "storage_uploads_per_day"
	CapFunctionInvocationsPerDay CapType = "function_invocations_per_day"
)

// Bounds is the inclusive range and provisioning default for one cap type.
type Bounds struct {
	Min     int64 `json:"min"`
	Default int64 `json:"default"`
	Max     int64 `json:"max"`
}

var bounds = map[CapType]Bounds{
	CapDBQueriesPerDay:           {Min: 1_000, Default: 100_000, Max: 10_000_000},
	CapRealtimeConnections:       {Min: 1, Default: 100, Max: 10_000},
	CapStorageUploadsPerDay:      {Min: 10, Default: 1_000, Max: 1_000_000},
	CapFunctionInvocationsPerDay: {Min: 100, Default: 50_000, Max: 5_000_000},
}

// CapTypes lists every cap type in a stable order.
func CapTypes() []CapType {
	return []CapType{
		CapDBQueriesPerDay,
		CapRealtimeConnections,
		CapStorageUploadsPerDay,
		CapFunctionInvocationsPerDay,
	}
}

func BoundsFor(capType CapType) (Bounds, bool) {
	b, ok := bounds[capType]
	return b, ok
}

// Validate reports ErrInvalidCapType or ErrOutOfRange for value.
func Validate(capType CapType, value int64) error {
	b, ok := bounds[capType]
	if !ok {
		return ErrInvalidCapType
	}
	if value < b.Min || value > b.Max {
		return ErrOutOfRange
	}
	return nil
}

type Quota struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;uniqueIndex:ux_project_quotas_project_cap" json:"project_id"`
	CapType   CapType      `gorm:"type:text;not null;uniqueIndex:ux_project_quotas_project_cap" json:"cap_type"`
	CapValue  int64        `gorm:"not null" json:"cap_value"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Quota) TableName() string { return "project_quotas" }

// Caps is a cap_type keyed snapshot of a project's limits.
type Caps map[CapType]int64

// ToMap converts caps into a JSON-friendly map for audit and override records.
func (c Caps) ToMap() map[string]any {
	if c == nil {
		return nil
	}
	out := make(map[string]any, len(c))
	for capType, value := range c {
		out[string(capType)] = value
	}
	return out
}
