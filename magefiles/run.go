//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Scans the bundled image and replays the demo script.
func (Run) Demo() error {
	mg.Deps(Build.Binary)
	fmt.Println("Run demo...")
	if _, err := executeCmd("bin/morphix", withArgs(
		"run",
		"--config", "assets/morphix.toml",
		"--script", "assets/scripts/walk-past.yaml",
	), withStream()); err != nil {
		return err
	}
	return nil
}
