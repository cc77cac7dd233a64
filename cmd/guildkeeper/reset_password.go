package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"guildkeeper/pkg/config"
)

var (
	resetUsername  string
	resetPassword  string
	resetPrintOnly bool
)

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set the dashboard admin password",
	Long: `Set the admin password for the web dashboard.
The JWT secret is rotated, invalidating all existing sessions.

Examples:
  # Interactive password input
  guildkeeper reset-password

  # Non-interactive
  guildkeeper reset-password --password newpass

  # Only print the bcrypt hash
  guildkeeper reset-password --password newpass --print`,
	Run: runResetPassword,
}

func init() {
	resetPasswordCmd.Flags().StringVar(&resetUsername, "username", "", "new admin username (optional)")
	resetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "new admin password")
	resetPasswordCmd.Flags().BoolVar(&resetPrintOnly, "print", false, "print the hash instead of saving it")
	rootCmd.AddCommand(resetPasswordCmd)
}

func readPassword() (string, error) {
	fmt.Print("Enter new password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(raw) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// applyAdminCredential stores a new hash and rotates the token secret.
func applyAdminCredential(cfg *config.Config, username, password string) error {
	hash, err := config.HashPassword(password)
	if err != nil {
		return err
	}
	if username = strings.TrimSpace(username); username != "" {
		cfg.Dashboard.AdminUsername = username
	}
	if cfg.Dashboard.AdminUsername == "" {
		cfg.Dashboard.AdminUsername = "admin"
	}
	cfg.Dashboard.AdminPasswordHash = hash
	cfg.Dashboard.JWTSecret = config.GenerateJWTSecret()
	return nil
}

func runResetPassword(cmd *cobra.Command, args []string) {
	password := strings.TrimSpace(resetPassword)
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if resetPrintOnly {
		hash, err := config.HashPassword(password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := applyAdminCredential(cfg, resetUsername, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}
	if err := loader.Save(loader.ConfigFileUsed(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin password reset successfully (username: %s)\n", cfg.Dashboard.AdminUsername)
	fmt.Println("All existing sessions have been invalidated.")
}
