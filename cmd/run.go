package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/morphix/engine"
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/journal"
	"github.com/spaghettifunk/morphix/engine/session"
	"github.com/spaghettifunk/morphix/testbed"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		scriptPath  string
		imagePath   string
		journalPath string
		seed        uint64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan an image and track it against a scripted session",
		Example: `  # Scan the bundled asset and replay a script
  morphix run --script assets/scripts/walk-past.yaml

  # Scan a photo and record the run
  morphix run --script walk.yaml --image photo.jpg --journal morphix.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if journalPath != "" {
				cfg.Journal.Path = journalPath
			}

			data, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			script, err := session.ParseScript(data)
			if err != nil {
				return err
			}
			sess, err := session.NewSimulatedSession(script, session.SimulatedOptions{Seed: seed})
			if err != nil {
				return err
			}

			deps := engine.Dependencies{Session: sess}
			if cfg.Journal.Path != "" {
				j, err := journal.Open(journal.Config{Path: cfg.Journal.Path, Buffer: cfg.Journal.Buffer})
				if err != nil {
					return err
				}
				deps.Journal = j
			}

			out := cmd.OutOrStdout()
			game := testbed.NewTestGame(cfg, out)
			e, err := engine.New(game.Game, deps)
			if err != nil {
				if deps.Journal != nil {
					deps.Journal.Close()
				}
				return err
			}
			defer func() {
				if err := e.Shutdown(); err != nil {
					core.LogError("shutdown: %s", err)
				}
			}()

			// A run without a database would replay empty frames forever.
			var scanned bool
			var scanErr error
			events := e.Events()
			events.Register(core.EVENT_CODE_DATABASE_READY, cmd, func(core.EventContext) bool {
				scanned = true
				return false
			})
			events.Register(core.EVENT_CODE_SCAN_FAILED, cmd, func(ctx core.EventContext) bool {
				if err, ok := ctx.Data.(error); ok && !scanned {
					scanErr = err
					events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
				}
				return false
			})

			ctx := cmd.Context()
			if err := e.Initialize(ctx); err != nil {
				if core.IsFatal(err) {
					return fmt.Errorf("AR is not available: %w", err)
				}
				return err
			}
			if err := e.Scan(engine.ScanSource{Path: imagePath}); err != nil {
				return err
			}
			if err := e.Run(ctx); err != nil {
				return err
			}
			if scanErr != nil {
				return fmt.Errorf("nothing to track: %w", scanErr)
			}

			s := e.Summary()
			fmt.Fprintf(out, "session %s: %d frames (%d skipped), %d anchors created, %d released, %d attached empty\n",
				sess.ID(), s.Metrics.FramesProcessed, s.Metrics.FramesSkipped,
				s.Reactor.AnchorsCreated, s.Reactor.AnchorsReleased, s.Reactor.EmptyAnchors)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file (default $"+configEnv+")")
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "YAML session script to replay")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "image to scan instead of the bundled asset")
	cmd.Flags().StringVar(&journalPath, "journal", "", "sqlite journal to record the run in")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for the script's pose jitter")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}
