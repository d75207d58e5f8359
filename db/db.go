package db

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Db is the GORM database instance holding the daemon's own state
// (renewal history). Credential material never lands here.
var Db *gorm.DB

// InitDB opens the state database under the given directory, creating
// the directory if needed. An unwritable state directory is the one
// configuration error the daemon treats as fatal, so the error must
// reach the caller.
func InitDB(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		log.Error().Err(err).Str("dir", stateDir).Msg("Failed to create state directory")
		return err
	}

	path := filepath.Join(stateDir, "credmon.db")
	var err error
	Db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open state database")
		return err
	}

	if err := Db.AutoMigrate(&RenewalEvent{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate state database")
		return err
	}

	configureLogger()
	log.Info().Str("path", path).Msg("State database initialized")
	return nil
}

// configureLogger silences GORM's logger unless debug logging is on.
func configureLogger() {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		Db.Logger = Db.Logger.LogMode(0) // Silent mode
	} else {
		Db.Logger = Db.Logger.LogMode(4) // Debug mode
	}
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
