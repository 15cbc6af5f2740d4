package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/morphix/engine/journal"
)

func newJournalCmd() *cobra.Command {
	var (
		dbPath    string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded runs, or the entries of one run",
		Example: `  morphix journal --db morphix.db
  morphix journal --db morphix.db --session 6f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig("")
				if err != nil {
					return err
				}
				dbPath = cfg.Journal.Path
			}
			if dbPath == "" {
				return fmt.Errorf("no journal given: use --db or set journal.path")
			}
			j, err := journal.Open(journal.Config{Path: dbPath})
			if err != nil {
				return err
			}
			defer j.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if sessionID == "" {
				sessions, err := j.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "SESSION\tLABEL\tSTARTED\tENTRIES")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.Label, s.StartedAt.Local().Format(time.DateTime), s.Entries)
				}
				return nil
			}

			entries, err := j.Entries(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "AT\tKIND\tTARGET\tANCHOR\tMESSAGE")
			for _, e := range entries {
				msg := e.Message
				if e.Kind == journal.KindAnchorCreated {
					msg = fmt.Sprintf("(%.3f, %.3f, %.3f) %s", e.Position.X, e.Position.Y, e.Position.Z, msg)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.At.Local().Format(time.TimeOnly), e.Kind, e.Target, e.AnchorID, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite journal (default journal.path from the config)")
	cmd.Flags().StringVar(&sessionID, "session", "", "show the entries of this session")

	return cmd
}
