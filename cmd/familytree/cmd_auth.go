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
)

var (
	credFlags struct {
		email    string
		password string
	}
	resetToken string

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in to the tree store",
		Args:  cobra.NoArgs,
		RunE:  withApp(false, runLogin),
	}
	signupCmd = &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE:  withApp(false, runSignup),
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Request a password reset email, or finish one with --token",
		Long: `Without --token, mails a reset token to --email.
With --token, sets a new password using the mailed token.`,
		Args: cobra.NoArgs,
		RunE: withApp(false, runReset),
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Push the tree one last time and sign out",
		Args:  cobra.NoArgs,
		RunE:  withApp(true, runLogout),
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  withApp(false, runWhoami),
	}
)

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd, resetCmd} {
		c.Flags().StringVar(&credFlags.email, "email", "", "account email")
		c.Flags().StringVar(&credFlags.password, "password", "", "password (prompted when omitted)")
	}
	resetCmd.Flags().StringVar(&resetToken, "token", "", "reset token from the email")

	rootCmd.AddCommand(loginCmd, signupCmd, resetCmd, logoutCmd, whoamiCmd)
}

func runLogin(ctx context.Context, a *app, _ []string) error {
	email, password := credFlags.email, credFlags.password
	if err := ux.Credentials(&email, &password); err != nil {
		return err
	}
	if err := a.auth.Login(ctx, email, password); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("%s: %s", a.text.T(locale.SignIn), a.auth.CurrentEmail()))
	return nil
}

func runSignup(ctx context.Context, a *app, _ []string) error {
	email, password := credFlags.email, credFlags.password
	if err := ux.Credentials(&email, &password); err != nil {
		return err
	}
	if err := a.auth.Signup(ctx, email, password); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("%s: %s", a.text.T(locale.SignUp), a.auth.CurrentEmail()))
	return nil
}

func runReset(ctx context.Context, a *app, _ []string) error {
	if resetToken != "" {
		password := credFlags.password
		if err := ux.Credentials(nil, &password); err != nil {
			return err
		}
		if err := a.auth.ConfirmReset(ctx, resetToken, password); err != nil {
			return err
		}
		out.Success("Password updated. Sign in with the new password.")
		return nil
	}

	email := credFlags.email
	if email == "" {
		return errors.New("--email is required")
	}
	if err := a.auth.ResetPassword(ctx, email); err != nil {
		return err
	}
	out.Success(a.text.T(locale.ResetSent))
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if a.auth.CurrentUserID() == "" {
		out.Info(a.text.T(locale.SignedOut))
		return nil
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	out.Success(a.text.T(locale.SignedOut))
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	if err := a.requireUser(); err != nil {
		return err
	}
	out.Info(fmt.Sprintf("%s (%s)", a.auth.CurrentEmail(), a.auth.CurrentUserID()))
	return nil
}
