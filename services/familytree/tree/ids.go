// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"math/rand/v2"
	"strconv"
)

const (
	minNodeID = 100000
	maxNodeID = 999999
)

// NewNodeID returns a random six-digit id that taken does not report as
// already in use. taken may be nil.
func NewNodeID(taken func(id string) bool) string {
	for {
		id := strconv.Itoa(minNodeID + rand.IntN(maxNodeID-minNodeID+1))
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// assignID gives r a fresh node id when it has none.
func (f Forest) assignID(r *Record) {
	if r.NodeID != "" {
		return
	}
	r.NodeID = NewNodeID(func(id string) bool {
		return f.FindByID(id) != nil
	})
}
