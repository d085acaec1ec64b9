package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"valuemap/server/internal/commands"
)

func main() {
	_ = godotenv.Load()

	if err := commands.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
