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

import "strings"

// Describe renders the details card shown for a person: name, birth,
// status, marriage and partner details.
func Describe(r Record) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	b.WriteString(r.Name)
	b.WriteByte('\n')
	line("DOB", orDash(string(r.DOB)))
	line("Status", status(r.IsAlive))
	if !r.IsAlive && r.DiedOn != "" {
		line("Died On", string(r.DiedOn))
	}
	if !r.Married {
		line("Married", "No")
		return b.String()
	}
	line("Married", "Yes")
	line("Partner", orDash(r.PartnerName))
	line("Partner DOB", orDash(string(r.PartnerDOB)))
	line("Partner Status", status(r.PartnerIsAlive))
	if !r.PartnerIsAlive && r.PartnerDiedOn != "" {
		line("Partner Died On", string(r.PartnerDiedOn))
	}
	return b.String()
}

func status(alive bool) string {
	if alive {
		return "Alive"
	}
	return "Deceased"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
