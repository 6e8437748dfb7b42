// Package repository implements the typed per-label accessors on top of
// the Graph Access Layer. A single shared capability set
// (Create/Find/Update/Delete/Count) lives in Base[T], generic over the
// entity type; per-label repositories embed it and add their own
// label-specific queries.
package repository

import "time"

// Entity is implemented by a pointer to every node struct this package
// manages. It gives Base[T, PT] generic access to the identity and
// timestamp fields every label carries.
type Entity[T any] interface {
	*T
	GetID() string
	SetID(id string)
	Timestamps() (created, updated time.Time)
	SetTimestamps(created, updated time.Time)
}

// Stamp is embedded in every entity struct to satisfy Entity without
// repeating the same three fields and four methods on each one.
type Stamp struct {
	ID        string    `mapstructure:"id"`
	CreatedAt time.Time `mapstructure:"created_at"`
	UpdatedAt time.Time `mapstructure:"updated_at"`
}

func (s *Stamp) GetID() string                      { return s.ID }
func (s *Stamp) SetID(id string)                    { s.ID = id }
func (s *Stamp) Timestamps() (time.Time, time.Time) { return s.CreatedAt, s.UpdatedAt }
func (s *Stamp) SetTimestamps(created, updated time.Time) {
	s.CreatedAt = created
	s.UpdatedAt = updated
}
