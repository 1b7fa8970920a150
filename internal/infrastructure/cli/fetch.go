package cli

import (
	"fmt"

	"github.com/felixgeelhaar/farol/pkg/storage"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the boards and save a snapshot for offline use",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(true)
		if err != nil {
			return err
		}
		snap, err := svc.dashboard.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		path, err := svc.store.ResolvePath(storage.SnapshotFile)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d cards from %d boards into %s\n",
			len(snap.Items), len(svc.cfg.Trello.Boards), path)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(fetchCmd)
}
