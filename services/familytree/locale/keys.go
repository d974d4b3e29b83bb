// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locale holds the user-facing strings of the editor.
//
// Strings are addressed by Key, a closed set with an English default for
// every member. Bundles fetched from the store only override keys they
// know. Unknown entries are dropped and missing ones fall back to the
// default, so a partial or stale bundle never leaves a blank label.
package locale

// Key names one translatable string.
type Key int

const (
	AppTitle Key = iota
	Instructions
	AddMember
	EditMember
	DeleteConfirm
	LastNodeRefused
	SearchNoMatch
	SearchPosition
	OfflineNotice
	PendingNotice
	SignIn
	SignUp
	ResetSent
	SignedOut
	Saved
	Imported
	Exported
	NotFound

	keyCount
)

type keyInfo struct {
	name string
	text string
}

var keys = [keyCount]keyInfo{
	AppTitle:        {"title", "Family Tree"},
	Instructions:    {"instructions", "Select a person, then add a parent, sibling or child. Parents can only be added to the top of the tree."},
	AddMember:       {"addMember", "Add family member"},
	EditMember:      {"editMember", "Edit family member"},
	DeleteConfirm:   {"deleteConfirm", "Delete %s and everyone below them?"},
	LastNodeRefused: {"lastNode", "The last person in the tree cannot be deleted."},
	SearchNoMatch:   {"noMatch", "No matching person found."},
	SearchPosition:  {"matchPosition", "Match %d of %d"},
	OfflineNotice:   {"offline", "You are offline. Changes are saved on this device."},
	PendingNotice:   {"pending", "Changes will sync when you are back online."},
	SignIn:          {"signIn", "Sign in"},
	SignUp:          {"signUp", "Create account"},
	ResetSent:       {"resetSent", "Password reset email sent."},
	SignedOut:       {"signedOut", "Signed out."},
	Saved:           {"saved", "Saved."},
	Imported:        {"imported", "Family tree imported."},
	Exported:        {"exported", "Family tree exported to %s."},
	NotFound:        {"notFound", "Page not found."},
}

// String returns the key's name in bundle files.
func (k Key) String() string {
	if k < 0 || k >= keyCount {
		return "unknown"
	}
	return keys[k].name
}

// Default returns the built-in English text for k.
func (k Key) Default() string {
	if k < 0 || k >= keyCount {
		return ""
	}
	return keys[k].text
}

// Keys returns every key in declaration order.
func Keys() []Key {
	out := make([]Key, keyCount)
	for i := range out {
		out[i] = Key(i)
	}
	return out
}

// ParseKey returns the key with the given bundle name.
func ParseKey(name string) (Key, bool) {
	for i, info := range keys {
		if info.name == name {
			return Key(i), true
		}
	}
	return 0, false
}
