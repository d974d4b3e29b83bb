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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/locale"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

var (
	showFind   string
	addTo      string
	addFields  recordFlags
	editFields recordFlags
	deleteYes  bool
	searchAt   int

	showCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Draw the tree, or describe one person",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withApp(true, runShow),
	}
	addCmd = &cobra.Command{
		Use:   "add <parent|sibling|child>",
		Short: "Add a parent, sibling or child of a person",
		Long: `Adds a person next to the one given by --to, or the root person.
Parents can only be added above a top-level person. Without field flags
an interactive form is shown.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(tree.Parent), string(tree.Sibling), string(tree.Child)},
	}
	editCmd = &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a person's details",
		Args:  cobra.ExactArgs(1),
	}
	deleteCmd = &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a person and everyone below them",
		Args:    cobra.ExactArgs(1),
		RunE:    withApp(true, runDelete),
	}
	searchCmd = &cobra.Command{
		Use:   "search <text>",
		Short: "Find people whose name or partner's name contains text",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(true, runSearch),
	}
)

func init() {
	// runAdd and runEdit read their command's flags, so RunE is set here.
	addCmd.RunE = withApp(true, runAdd)
	editCmd.RunE = withApp(true, runEdit)

	showCmd.Flags().StringVar(&showFind, "find", "", "highlight people matching this text")

	addCmd.Flags().StringVar(&addTo, "to", "", "id of the person to add next to (default: root)")
	addFields.bind(addCmd.Flags())

	editFields.bind(editCmd.Flags())

	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")

	searchCmd.Flags().IntVar(&searchAt, "at", 1, "describe the n-th match")

	rootCmd.AddCommand(showCmd, addCmd, editCmd, deleteCmd, searchCmd)
}

func runShow(_ context.Context, a *app, args []string) error {
	if len(args) == 1 {
		n, err := a.session.Select(args[0])
		if err != nil {
			return err
		}
		out.Box(tree.DisplayText(n), tree.Describe(n.Data))
		return nil
	}

	out.Title(a.text.T(locale.AppTitle))
	var matched int
	a.session.View(func(forest tree.Forest, selected *tree.Node) {
		matches := make(map[*tree.Node]bool)
		for _, m := range tree.FindMatches(forest, showFind) {
			matches[m] = true
		}
		matched = len(matches)
		out.Print(renderChart(forest, chartOptions{
			Rich:     out.Rich(),
			Selected: selected,
			IsMatch:  func(n *tree.Node) bool { return matches[n] },
		}))
	})
	if showFind != "" && matched == 0 {
		out.Muted(a.text.T(locale.SearchNoMatch))
	}
	out.Muted(fmt.Sprintf("%d people", a.session.Count()))
	return nil
}

func runAdd(_ context.Context, a *app, args []string) error {
	kind, err := tree.ParseRelation(args[0])
	if err != nil {
		return err
	}
	if addTo != "" {
		if _, err := a.session.Select(addTo); err != nil {
			return err
		}
	}

	rec := newRecord()
	fs := addCmd.Flags()
	if addFields.anySet(fs) {
		if rec, err = addFields.apply(fs, rec); err != nil {
			return err
		}
	} else if err := personForm(a.text.T(locale.AddMember), &rec); err != nil {
		if errors.Is(err, ux.ErrNotInteractive) {
			return errors.New("--name is required")
		}
		return err
	}

	n, err := a.session.Add(kind, rec)
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("%s %s [%s]", a.text.T(locale.Saved), n.Label, n.Data.NodeID))
	return nil
}

func runEdit(_ context.Context, a *app, args []string) error {
	n, err := a.session.Select(args[0])
	if err != nil {
		return err
	}

	rec := n.Data
	fs := editCmd.Flags()
	if editFields.anySet(fs) {
		if rec, err = editFields.apply(fs, rec); err != nil {
			return err
		}
	} else if err := personForm(a.text.T(locale.EditMember), &rec); err != nil {
		if errors.Is(err, ux.ErrNotInteractive) {
			return errors.New("nothing to change; pass field flags such as --name")
		}
		return err
	}

	changed, err := a.session.EditIfChanged(rec)
	if err != nil {
		return err
	}
	if !changed {
		out.Muted("No changes.")
		return nil
	}
	out.Success(a.text.T(locale.Saved))
	return nil
}

func runDelete(_ context.Context, a *app, args []string) error {
	n, err := a.session.Select(args[0])
	if err != nil {
		return err
	}
	if !deleteYes {
		ok, err := ux.Confirm(a.text.Tf(locale.DeleteConfirm, tree.DisplayText(n)), tree.Describe(n.Data))
		if errors.Is(err, ux.ErrNotInteractive) {
			return errors.New("refusing to delete without --yes")
		}
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := a.session.Delete(); err != nil {
		return err
	}
	out.Success(a.text.T(locale.Saved))
	return nil
}

func runSearch(_ context.Context, a *app, args []string) error {
	first, count := a.session.Search(args[0])
	if first == nil {
		out.Muted(a.text.T(locale.SearchNoMatch))
		return nil
	}
	if searchAt < 1 || searchAt > count {
		return fmt.Errorf("--at must be between 1 and %d", count)
	}
	for i := 1; i < searchAt; i++ {
		a.session.Next()
	}
	n, idx, total := a.session.Match()
	out.Info(a.text.Tf(locale.SearchPosition, idx+1, total))
	out.Box(fmt.Sprintf("%s [%s]", tree.DisplayText(n), n.Data.NodeID), tree.Describe(n.Data))
	return nil
}
