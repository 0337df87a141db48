package main

import (
	"os"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
