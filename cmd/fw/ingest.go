package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fuelwatch/fuelwatch/internal/ingest"
	"github.com/fuelwatch/fuelwatch/internal/kgraph"
	"github.com/fuelwatch/fuelwatch/internal/store"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ingest <snapshot.json>",
		Short: "Apply a telemetry snapshot from a JSON file",
		Long: `Reads a snapshot file and applies it to the database: site inventory
readings and load ETAs. Rows that fail validation are reported and
skipped; the rest of the batch still lands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Fuelwatch config file")
	return cmd
}

func runIngest(cmd *cobra.Command, configPath, path string) error {
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap ingest.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	gormDB, err := agentDB(configPath)
	if err != nil {
		return err
	}

	res, err := ingest.Apply(gormDB, snap)
	if err != nil {
		return err
	}

	for _, loadID := range res.Delivered {
		load, err := store.GetLoad(gormDB, loadID)
		if err != nil {
			fmt.Fprintf(out, "warning: delivered load %d: %v\n", loadID, err)
			continue
		}
		if err := kgraph.OnLoadDelivered(gormDB, load, snap.Timestamp); err != nil {
			fmt.Fprintf(out, "warning: record delivery of load %d: %v\n", loadID, err)
		}
	}

	fmt.Fprintf(out, "Applied %d site readings and %d load updates\n", res.SitesApplied, res.LoadsApplied)
	if len(res.Delivered) > 0 {
		fmt.Fprintf(out, "Recorded %d deliveries\n", len(res.Delivered))
	}
	for _, rej := range res.Rejected {
		fmt.Fprintf(out, "rejected %s %q: %s\n", rej.Kind, rej.Key, rej.Reason)
	}
	if len(res.Rejected) > 0 {
		return fmt.Errorf("%d rows rejected", len(res.Rejected))
	}
	return nil
}
