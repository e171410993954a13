package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/darbyjahn/smallphot0-backend/internal/startup"
)

func main() {
	root := newRootCmd(newCLI())

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(startup.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
