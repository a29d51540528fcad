package main

import (
	"os"

	"github.com/sheikh-saqib/brokerage-ledger/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
