package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/token-intel/internal/app"
)

func main() {
	// A missing .env is normal; existing variables always win.
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
