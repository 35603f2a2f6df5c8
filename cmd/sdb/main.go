package main

import (
	"os"

	"github.com/adkevin3307/sdb/cmd/sdb/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
