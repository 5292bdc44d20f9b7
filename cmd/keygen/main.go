package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/tjfontaine/kudospace/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/keygen <api-key> [display-name]")
		fmt.Println("Prints a users entry for config.yaml with the SHA-256 hash of the key")
		os.Exit(1)
	}

	apiKey := os.Args[1]
	name := "New User"
	if len(os.Args) > 2 {
		name = os.Args[2]
	}

	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  users:\n")
	fmt.Printf("    - id: \"%s\"\n", uuid.NewString())
	fmt.Printf("      display_name: \"%s\"\n", name)
	fmt.Printf("      key_hash: \"%s\"\n", keyHash)
}
