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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/familytree/services/familytree/locale"
)

var langCmd = &cobra.Command{
	Use:   "lang [code]",
	Short: "Show or set the preferred language",
	Long: `Without an argument, prints the preferred language and its messages.
With one, stores it as the preferred language and fetches its bundle.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(false, runLang),
}

func init() {
	rootCmd.AddCommand(langCmd)
}

func runLang(ctx context.Context, a *app, args []string) error {
	if len(args) == 1 {
		if err := a.catalog.SetPreferred(args[0]); err != nil {
			return err
		}
		a.text = a.catalog.Load(ctx, args[0])
		out.Success(fmt.Sprintf("%s: %s", a.text.T(locale.AppTitle), a.text.Lang()))
		return nil
	}

	out.Title(a.text.Lang())
	for _, k := range locale.Keys() {
		out.Info(fmt.Sprintf("%-14s %s", k, a.text.T(k)))
	}
	return nil
}
