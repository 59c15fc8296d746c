package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and persist the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, _, err := newClient()
		if err != nil {
			return err
		}
		defer cl.Close()

		username := loginUsername
		if username == "" {
			username, err = prompt("Username: ")
			if err != nil {
				return err
			}
		}
		password := loginPassword
		if password == "" {
			password, err = prompt("Password: ")
			if err != nil {
				return err
			}
		}

		if err := cl.Login(cmd.Context(), username, password); err != nil {
			return fmt.Errorf("login: %w", err)
		}

		cred := cl.Session.Get()
		fmt.Printf("Logged in as %s (%s)\n", cred.UserName, cred.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the persisted session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, _, err := newClient()
		if err != nil {
			return err
		}
		if err := cl.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
