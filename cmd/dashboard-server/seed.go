package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/platform/sandbox"
)

func seedCmd() *cobra.Command {
	sc := sandbox.DefaultSeedConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with demo data",
		Long: "Create demo wards, beds, patients, machines, vendors, stock items and vehicles.\n" +
			"Rows go through the same validation as rows entered by staff. Running twice\n" +
			"with the same --seed fails on the first duplicate.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return errors.New("seed needs STORAGE=postgres; use serve --seed for the memory store")
			}
			logger := newLogger(cfg)
			st, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			// Nothing is served, so tokens signed with this key are never checked.
			key, err := randomHex(32)
			if err != nil {
				return err
			}
			srv, err := newServer(cfg, st, []byte(key), logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			res, err := srv.seeder.Run(cmd.Context(), sc)
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"Seed %d: %d wards, %d beds, %d patients, %d machines, %d vendors, %d items, %d vehicles\n",
					res.Seed, res.Wards, res.Beds, res.Patients, res.Machines, res.Vendors, res.Items, res.Vehicles)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&sc.Wards, "wards", sc.Wards, "Wards to create")
	f.IntVar(&sc.BedsPerWard, "beds-per-ward", sc.BedsPerWard, "Beds in each ward")
	f.IntVar(&sc.Patients, "patients", sc.Patients, "Patients to register")
	f.IntVar(&sc.Machines, "machines", sc.Machines, "Dialysis machines")
	f.IntVar(&sc.Vendors, "vendors", sc.Vendors, "Vendors")
	f.IntVar(&sc.ItemsPerVendor, "items-per-vendor", sc.ItemsPerVendor, "Stock items per vendor")
	f.IntVar(&sc.Vehicles, "vehicles", sc.Vehicles, "Vehicles")
	f.Int64Var(&sc.Seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}
