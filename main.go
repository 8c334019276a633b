package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/smartedupay/aicore/cmd"
)

func main() {
	// Credentials usually live in the platform's .env; absence is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
