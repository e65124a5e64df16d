package main

import (
	"fmt"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autoelite.com/storefront/internal/config"
	"autoelite.com/storefront/internal/logger"
	"autoelite.com/storefront/internal/store"
)

var seedFile string

// seedCmd loads vehicles from a YAML file into the inventory.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import vehicles from a YAML file",
	Long: `Import vehicles from a YAML file into the inventory.

The file holds a top-level "vehicles" list. Invalid entries are skipped
and reported in the log.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "vehicles.yaml", "YAML file with the vehicles to import")
}

func runSeed(cmd *cobra.Command, args []string) error {
	log := logger.Component(zlog.Logger, "seed")

	vehicles, err := store.LoadVehicleSeed(seedFile)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), config.AppConfig, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.vehicles.Import(cmd.Context(), vehicles, "")
	if err != nil {
		return err
	}
	log.Info().Int("imported", n).Int("skipped", len(vehicles)-n).Str("file", seedFile).Msg("seed complete")
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d vehicles from %s\n", n, len(vehicles), seedFile)
	return nil
}
