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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/familytree/pkg/ux"
	"github.com/AleutianAI/familytree/services/familytree/auth"
	"github.com/AleutianAI/familytree/services/familytree/config"
	"github.com/AleutianAI/familytree/services/familytree/failure"
	"github.com/AleutianAI/familytree/services/familytree/locale"
	"github.com/AleutianAI/familytree/services/familytree/tree"
)

// --- Global Command Variables ---
var (
	flags struct {
		config  string
		offline bool
		lang    string
		output  string
		verbose bool
	}

	cfg *config.Config
	out = ux.NewPrinter()

	rootCmd = &cobra.Command{
		Use:   "familytree",
		Short: "Edit your family tree from the terminal",
		Long: `familytree keeps a family tree in the treestore server and on this
machine. Select a person by id, then add a parent, sibling or child.
Changes made offline are pushed once the server is reachable again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.output != "" {
				out.Mode = ux.ParseMode(flags.output)
			}
			loaded, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default ~/.familytree/familytree.yaml)")
	pf.BoolVar(&flags.offline, "offline", false, "do not contact the server; changes stay pending")
	pf.StringVar(&flags.lang, "lang", "", "language of messages, e.g. en or fr")
	pf.StringVar(&flags.output, "output", "", "output style: rich, plain or machine")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		out.Error(userMessage(err))
		return 1
	}
	return 0
}

// withApp adapts fn into a cobra RunE. With session set the tree is
// loaded first.
func withApp(session bool, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, out)
		if err != nil {
			return err
		}
		defer a.Close()
		if session {
			if err := a.openSession(ctx); err != nil {
				return err
			}
		} else {
			a.loadText(ctx)
		}
		return fn(ctx, a, args)
	}
}

// userMessage turns err into the sentence printed on failure.
func userMessage(err error) string {
	switch {
	case auth.Code(err) != "":
		return auth.Message(err)
	case errors.Is(err, tree.ErrLastNode):
		return locale.LastNodeRefused.Default()
	case errors.Is(err, ux.ErrAborted):
		return "cancelled"
	case failure.Is(err, failure.Network):
		return err.Error() + " (" + locale.OfflineNotice.Default() + ")"
	default:
		return err.Error()
	}
}
