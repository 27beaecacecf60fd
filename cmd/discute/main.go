package main

import (
	"fmt"
	"os"

	"github.com/satriahrh/discute/internal/cli"
)

func main() {
	if err := cli.CreateRootCommand(cli.NewFlags()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
