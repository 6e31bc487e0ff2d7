package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipflow/internal/database"

	"golang.org/x/term"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "/database"

	minPasswordLength = 8
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "clipflow.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	ok := true
	switch command {
	case "create":
		ok = createUser(ctx, db)
	case "reset-password":
		ok = resetPassword(ctx, db)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command")
		printUsage()
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Clipflow Account Management")
	fmt.Println("")
	fmt.Println("Usage: useradm <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  create <fullname> <email> [role]  - Create an account (role: viewer, editor, admin)")
	fmt.Println("  reset-password <email>            - Reset an account's password")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Printf("  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}

// promptPassword reads and confirms a password without echo.
func promptPassword() ([]byte, bool) {
	fmt.Print("New Password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return nil, false
	}

	fmt.Print("Confirm Password: ")
	confirm, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return nil, false
	}

	if !bytes.Equal(password, confirm) {
		fmt.Fprintln(os.Stderr, "Error: Passwords do not match")
		return nil, false
	}
	if len(password) < minPasswordLength {
		fmt.Fprintf(os.Stderr, "Error: Password must be at least %d characters\n", minPasswordLength)
		return nil, false
	}
	return password, true
}

func createUser(ctx context.Context, db *database.Database) bool {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: useradm create <fullname> <email> [role]")
		return false
	}
	fullname := os.Args[2]
	email := os.Args[3]

	role := database.RoleEditor
	if len(os.Args) > 4 {
		parsed, ok := database.ParseRole(os.Args[4])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: Unknown role %q (viewer, editor, admin)\n", os.Args[4])
			return false
		}
		role = parsed
	}

	password, ok := promptPassword()
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	user, err := db.CreateUser(ctx, fullname, email, string(password), role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create account: %v\n", err)
		return false
	}

	fmt.Printf("Account %s created with role %s.\n", user.Email, user.Role)
	return true
}

func resetPassword(ctx context.Context, db *database.Database) bool {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: useradm reset-password <email>")
		return false
	}
	email := os.Args[2]

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	user, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: No account with email %s\n", email)
		return false
	}

	password, ok := promptPassword()
	if !ok {
		return false
	}

	if err := db.UpdatePassword(ctx, user.ID, string(password)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to update password: %v\n", err)
		return false
	}

	fmt.Println("Password updated successfully.")
	fmt.Println("Existing tokens stay valid until they expire.")
	return true
}
