// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/dates"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// recordFlags are the person fields settable from the command line.
type recordFlags struct {
	name          string
	gender        string
	dob           string
	alive         bool
	diedOn        string
	married       bool
	partnerName   string
	partnerDOB    string
	partnerAlive  bool
	partnerDiedOn string
}

func (r *recordFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&r.name, "name", "", "full name")
	fs.StringVar(&r.gender, "gender", "", "Male, Female or Other")
	fs.StringVar(&r.dob, "dob", "", "date of birth, YYYY-MM-DD")
	fs.BoolVar(&r.alive, "alive", true, "the person is alive")
	fs.StringVar(&r.diedOn, "died-on", "", "date of death, YYYY-MM-DD")
	fs.BoolVar(&r.married, "married", false, "the person is married")
	fs.StringVar(&r.partnerName, "partner-name", "", "partner's full name")
	fs.StringVar(&r.partnerDOB, "partner-dob", "", "partner's date of birth")
	fs.BoolVar(&r.partnerAlive, "partner-alive", true, "the partner is alive")
	fs.StringVar(&r.partnerDiedOn, "partner-died-on", "", "partner's date of death")
}

// apply overlays the flags set on fs onto base.
func (r *recordFlags) apply(fs *pflag.FlagSet, base tree.Record) (tree.Record, error) {
	set := fs.Changed
	if set("name") {
		base.Name = strings.TrimSpace(r.name)
	}
	if set("gender") {
		g, err := tree.ParseGender(r.gender)
		if err != nil {
			return base, err
		}
		base.Gender = g
	}
	if set("dob") {
		base.DOB = tree.Date(r.dob)
	}
	if set("alive") {
		base.IsAlive = r.alive
	}
	if set("died-on") {
		base.DiedOn = tree.Date(r.diedOn)
	}
	if set("married") {
		base.Married = tree.YesNo(r.married)
	}
	if set("partner-name") {
		base.PartnerName = strings.TrimSpace(r.partnerName)
	}
	if set("partner-dob") {
		base.PartnerDOB = tree.Date(r.partnerDOB)
	}
	if set("partner-alive") {
		base.PartnerIsAlive = r.partnerAlive
	}
	if set("partner-died-on") {
		base.PartnerDiedOn = tree.Date(r.partnerDiedOn)
	}
	return base, nil
}

// anySet reports whether any record flag was given.
func (r *recordFlags) anySet(fs *pflag.FlagSet) bool {
	for _, name := range []string{"name", "gender", "dob", "alive", "died-on", "married",
		"partner-name", "partner-dob", "partner-alive", "partner-died-on"} {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

// newRecord is the starting point for a person added from flags.
func newRecord() tree.Record {
	return tree.Record{IsAlive: true, PartnerIsAlive: true}
}

// personForm edits rec interactively. Dates are checked as they are typed.
func personForm(title string, rec *tree.Record) error {
	if !ux.Interactive() {
		return ux.ErrNotInteractive
	}
	var (
		gender        = string(rec.Gender)
		dob           = string(rec.DOB)
		diedOn        = string(rec.DiedOn)
		married       = bool(rec.Married)
		partnerDOB    = string(rec.PartnerDOB)
		partnerDiedOn = string(rec.PartnerDiedOn)
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&rec.Name).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return tree.ErrEmptyName
				}
				return nil
			}),
			huh.NewSelect[string]().Title("Gender").Options(
				huh.NewOption("Not recorded", ""),
				huh.NewOption("Male", string(tree.Male)),
				huh.NewOption("Female", string(tree.Female)),
				huh.NewOption("Other", string(tree.Other)),
			).Value(&gender),
			huh.NewInput().Title("Date of birth").Placeholder("YYYY-MM-DD").Value(&dob).Validate(validDate),
			huh.NewConfirm().Title("Alive?").Value(&rec.IsAlive),
		).Title(title),
		huh.NewGroup(
			huh.NewInput().Title("Died on").Placeholder("YYYY-MM-DD").Value(&diedOn).Validate(validDate),
		).WithHideFunc(func() bool { return rec.IsAlive }),
		huh.NewGroup(
			huh.NewConfirm().Title("Married?").Value(&married),
		),
		huh.NewGroup(
			huh.NewInput().Title("Partner name").Value(&rec.PartnerName),
			huh.NewInput().Title("Partner date of birth").Placeholder("YYYY-MM-DD").Value(&partnerDOB).Validate(validDate),
			huh.NewConfirm().Title("Partner alive?").Value(&rec.PartnerIsAlive),
		).WithHideFunc(func() bool { return !married }),
		huh.NewGroup(
			huh.NewInput().Title("Partner died on").Placeholder("YYYY-MM-DD").Value(&partnerDiedOn).Validate(validDate),
		).WithHideFunc(func() bool { return !married || rec.PartnerIsAlive }),
	)
	if err := form.Run(); err != nil {
		return err
	}

	rec.Name = strings.TrimSpace(rec.Name)
	rec.Gender = tree.Gender(gender)
	rec.DOB = tree.Date(dob)
	rec.DiedOn = tree.Date(diedOn)
	rec.Married = tree.YesNo(married)
	rec.PartnerDOB = tree.Date(partnerDOB)
	rec.PartnerDiedOn = tree.Date(partnerDiedOn)
	return nil
}

// validDate accepts an empty value or anything that normalizes to a
// calendar date.
func validDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if dates.Normalize(s) == "" {
		return fmt.Errorf("%q is not a date", s)
	}
	return nil
}
