package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	billingrecorddomain "github.com/smallbiznis/computeledger/internal/billingrecord/domain"
	deploymentdomain "github.com/smallbiznis/computeledger/internal/deployment/domain"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	"github.com/smallbiznis/computeledger/internal/onboarding"
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"gorm.io/gorm"
)

// Apply brings the schema up to date. Postgres uses the versioned SQL files
// under migrations/; every other dialect is auto-migrated from the models.
func Apply(conn *gorm.DB, dialect string) error {
	if conn == nil {
		return errors.New("migration: nil database")
	}
	if !strings.EqualFold(dialect, dbpkg.DialectPostgres) {
		return AutoMigrate(conn)
	}
	return migratePostgres(conn)
}

func migratePostgres(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	files, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("migration: open embedded files: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migration: source: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration: driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	// m.Close would also close the pool shared with gorm.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}

// Models lists every table the service owns, parents before children.
func Models() []any {
	return []any{
		&pricingdomain.Preset{},
		&pricingdomain.AddonRate{},
		&deploymentdomain.Deployment{},
		&billingrecorddomain.BillingRecord{},
		&ledgerdomain.Balance{},
		&ledgerdomain.Transaction{},
		&suspensiondomain.TenantSuspension{},
		&onboarding.TenantEvent{},
		&paymentdomain.EventRecord{},
	}
}

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migration: auto migrate: %w", err)
	}
	return nil
}
