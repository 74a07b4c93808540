package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/use-agent/threadgrab/models"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to X in a visible browser window and save the session",
	Long:  "login checks the saved session. If it is missing or expired a visible browser opens on the login page; finish logging in there, then press ENTER to save the session.",
	RunE:  loginAction,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func loginAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	_, err = eng.sessions.EnsureLoggedIn(ctx)
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Session is valid:", cfg.Session.StatePath)
		return nil
	}
	if !models.HasCode(err, models.ErrCodeLoginRequired) {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	for {
		fmt.Fprintln(cmd.OutOrStdout(), "Log in to X in the opened browser window, then press ENTER here.")
		if _, err := in.ReadString('\n'); err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if _, err := eng.sessions.Resume(ctx); err != nil {
			if models.HasCode(err, models.ErrCodeAuthentication) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Login not detected yet.")
				continue
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session saved:", cfg.Session.StatePath)
		return nil
	}
}
