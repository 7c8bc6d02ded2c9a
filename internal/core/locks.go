package core

import (
	"sync"

	"github.com/google/uuid"
)

// lockTable serializes operations per entity using striped mutexes.
// Unrelated entities may share a stripe; correctness only requires that
// the same entity always maps to the same lock.
type lockTable struct {
	stripes [64]sync.Mutex
}

func (t *lockTable) get(id uuid.UUID) *sync.Mutex {
	return &t.stripes[id[0]&63]
}
