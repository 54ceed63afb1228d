package main

import (
	"fmt"
	"os"

	"github.com/edgekit/device-manager/cmd/device-manager/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
