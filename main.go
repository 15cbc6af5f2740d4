package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/spaghettifunk/morphix/cmd"
)

const version = "0.1.0"

func main() {
	root := cmd.NewRootCmd()

	// fang cancels the command context on these signals; the engine leaves
	// its frame loop and shuts down.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
