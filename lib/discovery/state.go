// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import "sync"

// DedupState remembers every address and content hash noticed by this
// process. Both sets only grow; nothing is persisted.
type DedupState struct {
	mu        sync.Mutex
	addresses map[string]struct{}
	contents  map[string]struct{}
}

// NewDedupState returns empty sets.
func NewDedupState() *DedupState {
	return &DedupState{
		addresses: make(map[string]struct{}),
		contents:  make(map[string]struct{}),
	}
}

// HasAddress reports whether address was already recorded.
func (s *DedupState) HasAddress(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.addresses[address]
	return ok
}

// AddAddress records address and reports whether it was new.
func (s *DedupState) AddAddress(address string) bool {
	return s.add(s.addresses, address)
}

// AddContent records a content hash and reports whether it was new.
func (s *DedupState) AddContent(hash string) bool {
	return s.add(s.contents, hash)
}

func (s *DedupState) add(set map[string]struct{}, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	return true
}

// Sizes returns the number of recorded addresses and content hashes.
func (s *DedupState) Sizes() (addresses, contents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addresses), len(s.contents)
}
