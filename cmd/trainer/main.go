package main

import (
	"os"

	"TradeGP/cmd/trainer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
