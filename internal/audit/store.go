// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage. Suitable for
// development and tests. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates an in-memory audit store bounded to maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event, evicting the oldest events when full.
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount < 1 {
			removeCount = 1
		}
		s.events = s.events[removeCount:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Get retrieves an event by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}

	return nil, fmt.Errorf("event not found: %s", id)
}

// Query retrieves events matching the filter, most recent first unless
// the filter asks for ascending order.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			matched = append(matched, s.events[i])
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.OrderDesc || filter.OrderBy == "" {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for i := range s.events {
		if s.events[i].Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept

	return removed, nil
}

func matchesFilter(event *Event, filter *QueryFilter) bool {
	if len(filter.Types) > 0 && !containsValue(filter.Types, event.Type) {
		return false
	}
	if len(filter.Severities) > 0 && !containsValue(filter.Severities, event.Severity) {
		return false
	}
	if len(filter.Outcomes) > 0 && !containsValue(filter.Outcomes, event.Outcome) {
		return false
	}
	if filter.ActorID != "" && event.Actor.ID != filter.ActorID {
		return false
	}
	if filter.ActorType != "" && event.Actor.Type != filter.ActorType {
		return false
	}
	if filter.TargetID != "" && (event.Target == nil || event.Target.ID != filter.TargetID) {
		return false
	}
	if filter.TargetType != "" && (event.Target == nil || event.Target.Type != filter.TargetType) {
		return false
	}
	if filter.SourceIP != "" && event.Source.IPAddress != filter.SourceIP {
		return false
	}
	if filter.CorrelationID != "" && event.CorrelationID != filter.CorrelationID {
		return false
	}
	if filter.RequestID != "" && event.RequestID != filter.RequestID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SearchText != "" {
		search := strings.ToLower(filter.SearchText)
		if !strings.Contains(strings.ToLower(event.Description), search) &&
			!strings.Contains(strings.ToLower(event.Action), search) {
			return false
		}
	}
	return true
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
