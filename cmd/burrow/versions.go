package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/blob"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the versions held by a blob store",
	Long: `Show the announced version and the snapshot and delta chain stored
in a Burrow blob store.

Examples:
  burrow versions --store /var/lib/burrow/blobs.db`,
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().String("store", "", "Blob store path (required)")
	_ = versionsCmd.MarkFlagRequired("store")

	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	storePath, _ := cmd.Flags().GetString("store")

	store, err := blob.NewBoltStore(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	announced, err := store.AnnouncedVersion()
	if err != nil {
		return err
	}
	snapshots, err := store.SnapshotVersions()
	if err != nil {
		return err
	}
	deltas, err := store.DeltaVersions()
	if err != nil {
		return err
	}

	fmt.Printf("Announced: %s\n", announced)
	fmt.Printf("Snapshots (%d):\n", len(snapshots))
	for _, v := range snapshots {
		fmt.Printf("  %s\n", v)
	}
	fmt.Printf("Deltas (%d):\n", len(deltas))
	for _, v := range deltas {
		fmt.Printf("  %s ->\n", v)
	}
	return nil
}
