package model

import "time"

type User struct {
	ID        int64     `json:"id"`
	Credits   uint      `json:"credits"`
	PlanID    *int64    `json:"plan_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
