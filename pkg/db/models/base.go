package models

import "github.com/google/uuid"

// assignID fills a missing primary key before insert so rows get the same id shape
// on Postgres and on the in-memory test store.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
