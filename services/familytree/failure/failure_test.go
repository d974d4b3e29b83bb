// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilError(t *testing.T) {
	assert.NoError(t, New(Validation, "add", nil))
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	err := New(Network, "push", base)

	assert.Equal(t, Network, KindOf(err))
	assert.True(t, Is(err, Network))
	assert.False(t, Is(err, Auth))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "push: boom", err.Error())

	wrapped := fmt.Errorf("sync tree: %w", err)
	assert.Equal(t, Network, KindOf(wrapped))
	assert.Equal(t, Unknown, KindOf(base))
	assert.False(t, Is(nil, Unknown))
}

func TestKind_String(t *testing.T) {
	tests := map[Kind]string{
		Unknown:    "unknown",
		Validation: "validation",
		Auth:       "auth",
		Network:    "network",
		Guard:      "guard",
		NotFound:   "not_found",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
