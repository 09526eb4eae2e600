// Command devtoken prints a signed token for local testing of the chat server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"lanchat/internal/auth"
	"lanchat/internal/config"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token")
	username := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: devtoken -user <user-id> [-name <display-name>] [-ttl 12h]")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.IsProduction() {
		fmt.Fprintln(os.Stderr, "Refusing to sign tokens with ENV=production")
		os.Exit(1)
	}

	tok, err := auth.Sign(cfg.JWTSecret, auth.Identity{UserID: *userID, Username: *username}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
