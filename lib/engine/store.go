// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// DefinitionStore resolves pipeline IDs to definitions. The engine
// treats definitions as read-mostly input owned by an external
// authoring collaborator; it never writes through this interface.
type DefinitionStore interface {
	// GetDefinition returns the definition for a pipeline ID, or an
	// error wrapping ErrNotFound.
	GetDefinition(pipelineID string) (*schema.PipelineDefinition, error)
}

// MemoryDefinitionStore is an in-memory DefinitionStore. The daemon
// loads definition files into one at startup; tests populate it
// directly.
type MemoryDefinitionStore struct {
	mu          sync.RWMutex
	definitions map[string]*schema.PipelineDefinition
}

// NewMemoryDefinitionStore creates an empty store.
func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{
		definitions: make(map[string]*schema.PipelineDefinition),
	}
}

// Put adds or replaces a definition, keyed by its ID.
func (s *MemoryDefinitionStore) Put(def *schema.PipelineDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("definition has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = def
	return nil
}

// GetDefinition implements DefinitionStore.
func (s *MemoryDefinitionStore) GetDefinition(pipelineID string) (*schema.PipelineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[pipelineID]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %s", ErrNotFound, pipelineID)
	}
	return def, nil
}

// IDs returns the stored pipeline IDs, sorted.
func (s *MemoryDefinitionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
