package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spaghettifunk/morphix/engine"
)

const configEnv = "MORPHIX_CONFIG"

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "morphix",
		Short: "Image-anchored augmentation engine",
		Long: `Morphix scans a reference image, hands it to an AR session and keeps a
cube anchored on the image while the session tracks it.

The bundled session is simulated: it replays a YAML script of tracking
reports, so the whole flow runs headless.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newJournalCmd())

	return cmd
}

// loadConfig reads path, falling back to $MORPHIX_CONFIG and then to the
// built-in defaults.
func loadConfig(path string) (*engine.ApplicationConfig, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return engine.DefaultApplicationConfig(), nil
	}
	return engine.LoadApplicationConfig(path)
}
