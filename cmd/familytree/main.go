// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command familytree edits a family tree from the terminal.
//
// The tree lives in the treestore server under the signed-in user and is
// mirrored in a local database, so every command also works offline.
// Changes made offline are pushed on the next command that finds the
// server reachable.
//
// # Usage
//
//	familytree signup --email ana@example.com
//	familytree show
//	familytree add child --to 123456 --name "Ana" --dob 1990-04-01
//	familytree search ana
//	familytree export --out family-tree.json
package main

import (
	"os"
)

func main() {
	os.Exit(Execute())
}
