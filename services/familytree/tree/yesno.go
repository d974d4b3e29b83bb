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
	"bytes"
	"strings"
)

// YesNo is a boolean stored as "Y" or "N", the wire form of the married
// flag.
type YesNo bool

// MarshalJSON encodes y as "Y" or "N".
func (y YesNo) MarshalJSON() ([]byte, error) {
	if y {
		return []byte(`"Y"`), nil
	}
	return []byte(`"N"`), nil
}

// UnmarshalJSON accepts "Y"/"N" in either case and JSON booleans. Anything
// else decodes as false so that imported trees with odd values still load.
func (y *YesNo) UnmarshalJSON(data []byte) error {
	switch strings.ToUpper(string(bytes.TrimSpace(data))) {
	case `"Y"`, `"YES"`, "TRUE":
		*y = true
	default:
		*y = false
	}
	return nil
}
