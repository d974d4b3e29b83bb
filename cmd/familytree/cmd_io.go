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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/familytree/services/familytree/backup"
	"github.com/AleutianAI/familytree/services/familytree/codec"
	"github.com/AleutianAI/familytree/services/familytree/locale"
	"github.com/AleutianAI/familytree/services/familytree/tree"
	"github.com/AleutianAI/familytree/services/familytree/watch"
)

var (
	exportOut string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the tree as JSON",
		Args:  cobra.NoArgs,
		RunE:  withApp(true, runExport),
	}
	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the tree with a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(true, runImport),
	}
	watchCmd = &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import JSON files dropped into a directory and follow remote changes",
		Long: `Stays running until interrupted. Every *.json file written to dir is
imported as the new tree, and changes made on other devices are merged
as they arrive.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(true, runWatch),
	}
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Upload the tree to the configured Cloud Storage bucket",
		Args:  cobra.NoArgs,
		RunE:  withApp(true, runBackup),
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", codec.ExportFileName, `output file, or "-" for stdout`)
	rootCmd.AddCommand(exportCmd, importCmd, watchCmd, backupCmd)
}

func runExport(_ context.Context, a *app, _ []string) error {
	if exportOut == "-" {
		return a.session.Export(os.Stdout)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return err
	}
	if err := a.session.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	out.Success(a.text.Tf(locale.Exported, exportOut))
	return nil
}

func runImport(_ context.Context, a *app, args []string) error {
	if err := importFile(a, args[0]); err != nil {
		return err
	}
	out.Success(a.text.T(locale.Imported))
	return nil
}

func importFile(a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.session.Import(f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

func runWatch(ctx context.Context, a *app, args []string) error {
	if a.probe != nil {
		go a.probe.Run(ctx)
	}
	if a.auth.CurrentUserID() != "" {
		if err := a.session.Watch(ctx); err != nil {
			return err
		}
	}

	w, err := watch.New(args[0], func(path string) error {
		if err := importFile(a, path); err != nil {
			out.Error(userMessage(err))
			return err
		}
		out.Success(fmt.Sprintf("%s (%s, %d people)", a.text.T(locale.Imported), filepath.Base(path), a.session.Count()))
		return nil
	}, watch.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	out.Info(fmt.Sprintf("Watching %s. Press Ctrl-C to stop.", args[0]))
	<-ctx.Done()
	w.Stop()
	out.Muted(fmt.Sprintf("%d files imported", w.Imported()))
	return nil
}

func runBackup(ctx context.Context, a *app, _ []string) error {
	if err := a.requireUser(); err != nil {
		return err
	}
	g, err := backup.NewGCS(ctx, a.cfg.Backup.Bucket, a.cfg.Backup.Prefix, a.cfg.Backup.Credentials)
	if err != nil {
		return err
	}
	defer g.Close()

	forest, err := snapshot(a)
	if err != nil {
		return err
	}
	url, err := g.Upload(ctx, a.auth.CurrentUserID(), forest)
	if err != nil {
		return err
	}
	out.Success("Backed up to " + url)
	return nil
}

// snapshot returns an independent copy of the session's tree.
func snapshot(a *app) (tree.Forest, error) {
	var buf bytes.Buffer
	if err := a.session.Export(&buf); err != nil {
		return nil, err
	}
	return codec.DecodeImport(&buf)
}
