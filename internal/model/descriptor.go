package model

import "time"

// Descriptor is the persisted metadata of a stored model artifact.
type Descriptor struct {
	Key
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
