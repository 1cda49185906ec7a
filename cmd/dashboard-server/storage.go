package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/domain/dialysis"
	"github.com/carecenter/dashboard/internal/domain/documents"
	"github.com/carecenter/dashboard/internal/domain/inventory"
	"github.com/carecenter/dashboard/internal/domain/machine"
	"github.com/carecenter/dashboard/internal/domain/patient"
	"github.com/carecenter/dashboard/internal/domain/shift"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/domain/vendor"
	"github.com/carecenter/dashboard/internal/domain/ward"
	"github.com/carecenter/dashboard/internal/platform/blobstore"
	"github.com/carecenter/dashboard/internal/platform/db"
)

// storage holds the repositories of every resource over one backend.
type storage struct {
	users     user.Repository
	patients  patient.Repository
	sessions  dialysis.Repository
	wards     ward.WardRepository
	beds      ward.BedRepository
	shifts    shift.Repository
	machines  machine.Repository
	items     inventory.Repository
	movements inventory.MovementRepository
	vehicles  vehicle.Repository
	vendors   vendor.Repository
	documents documents.Repository
	blobs     blobstore.Store
	tx        db.TxRunner
	// pinger is nil for the in-memory backend.
	pinger db.Pinger
	close  func()
}

// memoryStorage keeps everything, uploaded content included, in process
// memory. It is meant for development and tests.
func memoryStorage() *storage {
	users := user.NewMemRepo()
	patients := patient.NewMemRepo()
	machines := machine.NewMemRepo()
	vendors := vendor.NewMemRepo()
	wards := ward.NewWardMemRepo()
	items := inventory.NewMemRepo(vendors)
	return &storage{
		users:     users,
		patients:  patients,
		sessions:  dialysis.NewMemRepo(patients, machines, users),
		wards:     wards,
		beds:      ward.NewBedMemRepo(wards, patients),
		shifts:    shift.NewMemRepo(users, wards),
		machines:  machines,
		items:     items,
		movements: inventory.NewMovementMemRepo(items, users),
		vehicles:  vehicle.NewMemRepo(),
		vendors:   vendors,
		documents: documents.NewMemRepo(),
		blobs:     blobstore.NewMemStore(),
		tx:        &db.LocalTx{},
		close:     func() {},
	}
}

// postgresStorage connects to DATABASE_URL and keeps uploaded content under
// UPLOAD_DIR.
func postgresStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	blobs, err := blobstore.NewFSStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return &storage{
		users:     user.NewPGRepo(pool),
		patients:  patient.NewPGRepo(pool),
		sessions:  dialysis.NewPGRepo(pool),
		wards:     ward.NewWardPGRepo(pool),
		beds:      ward.NewBedPGRepo(pool),
		shifts:    shift.NewPGRepo(pool),
		machines:  machine.NewPGRepo(pool),
		items:     inventory.NewPGRepo(pool),
		movements: inventory.NewMovementPGRepo(pool),
		vehicles:  vehicle.NewPGRepo(pool),
		vendors:   vendor.NewPGRepo(pool),
		documents: documents.NewPGRepo(pool),
		blobs:     blobs,
		tx:        db.PoolTx{Pool: pool},
		pinger:    pool,
		close:     pool.Close,
	}, nil
}

// openStorage returns the backend selected by STORAGE.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return memoryStorage(), nil
	case config.StoragePostgres:
		st, err := postgresStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("schema", cfg.DBSchema).Str("uploads", cfg.UploadDir).Msg("connected to database")
		return st, nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
