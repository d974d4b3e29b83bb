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
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// recordValidate checks Record field tags.
var recordValidate = validator.New()

// Validate checks the enumerated fields and length limits of r. It does
// not require a name; AddRelation checks that separately.
func Validate(r Record) error {
	if err := recordValidate.Struct(r); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		if len(fields) == 0 {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(fields, ", "))
	}
	return nil
}

// ParseGender accepts any letter case and the single-letter forms.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "male", "m":
		return Male, nil
	case "female", "f":
		return Female, nil
	case "other", "o":
		return Other, nil
	default:
		return "", fmt.Errorf("%w: gender %q", ErrInvalidRecord, s)
	}
}

// ParseRelation accepts any letter case.
func ParseRelation(s string) (Relation, error) {
	switch Relation(strings.ToLower(strings.TrimSpace(s))) {
	case Parent:
		return Parent, nil
	case Sibling:
		return Sibling, nil
	case Child:
		return Child, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRelation, s)
	}
}
