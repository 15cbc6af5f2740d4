package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/morphix/engine/assets"
	"github.com/spaghettifunk/morphix/engine/systems"
)

func newScanCmd() *cobra.Command {
	var (
		configPath string
		name       string
		width      float32
	)

	cmd := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Build a reference image database and print what it holds",
		Long: `Decodes each image, validates it and converts it to the grayscale
reference form the session tracks. Nothing is written; use it to check an
image before scanning it for real.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("width") {
				width = cfg.Scan.WidthMeters
			}

			am, err := assets.NewAssetManager(assets.AssetManagerConfig{})
			if err != nil {
				return err
			}
			defer am.Shutdown()

			ids, err := systems.NewImageDatabaseSystem(systems.ImageDatabaseSystemConfig{
				MinImageSize: cfg.Scan.MinImageSize,
				MaxImageSize: cfg.Scan.MaxImageSize,
			})
			if err != nil {
				return err
			}

			sources := make([]systems.ImageSource, 0, len(args))
			for i, path := range args {
				img, err := am.LoadImage(path)
				if err != nil {
					return err
				}
				target := name
				switch {
				case target == "" && len(args) == 1:
					target = cfg.Scan.TargetName
				case target == "":
					target = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				case len(args) > 1:
					target = fmt.Sprintf("%s_%d", name, i)
				}
				sources = append(sources, systems.ImageSource{Name: target, Image: img, WidthMeters: width})
			}

			db, err := ids.Build(cmd.Context(), sources...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d reference image(s)\n", db.Len())
			for _, n := range db.Names() {
				ref, _ := db.Get(n)
				physical := "unknown width"
				if ref.PhysicalWidth > 0 {
					physical = fmt.Sprintf("%.3fm wide", ref.PhysicalWidth)
				}
				fmt.Fprintf(out, "  %s: %dx%d, %s\n", ref.Name, ref.Width, ref.Height, physical)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file (default $"+configEnv+")")
	cmd.Flags().StringVarP(&name, "name", "n", "", "target name (default scan.target_name, or the file names)")
	cmd.Flags().Float32VarP(&width, "width", "w", 0, "physical width in metres, 0 for unknown (default scan.width_meters)")

	return cmd
}
