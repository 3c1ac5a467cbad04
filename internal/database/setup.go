package database

import (
	"chatcore/internal/config"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(db *sql.DB, sugar *zap.SugaredLogger) error {
	var foreignKeysValue bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysValue); err != nil {
		return err
	}
	if !foreignKeysValue {
		return errors.New("sqlite foreign keys are not enabled")
	}

	var journalModeValue string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalModeValue); err != nil {
		return err
	}

	sugar.Debugf("sqlite PRAGMA foreign_keys: %t, journal_mode: %s", foreignKeysValue, journalModeValue)
	return nil
}

// OpenSqlite opens and migrates a sqlite database. Pass ":memory:" for a
// throwaway database.
func OpenSqlite(path string, sugar *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1, it also keeps
	// a :memory: database alive on its single connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := setPragmaValues(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := readPragmaValues(db, sugar); err != nil {
		db.Close()
		return nil, err
	}

	if err := setupTables(db, dialectSqlite); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func openMysql(cfg *config.ConfigFile) (*sql.DB, error) {
	mysqlConfig := mysql.NewConfig()
	mysqlConfig.User = cfg.DbUser
	mysqlConfig.Passwd = cfg.DbPassword
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%s", cfg.DbAddress, cfg.DbPort)
	mysqlConfig.DBName = cfg.DbDatabase
	mysqlConfig.ParseTime = true
	mysqlConfig.Timeout = 10 * time.Second
	mysqlConfig.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mysqlConfig.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := setupTables(db, dialectMysql); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func Setup(cfg *config.ConfigFile, sugar *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.SelfContained {
		sugar.Infof("Connecting to database sqlite at %s...", cfg.SqlitePath)
		return OpenSqlite(cfg.SqlitePath, sugar)
	}

	sugar.Infof("Connecting to database mysql/mariadb at %s:%s...", cfg.DbAddress, cfg.DbPort)
	return openMysql(cfg)
}
