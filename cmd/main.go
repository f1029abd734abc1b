package main

import (
	"net/http"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/db"
	"github.com/senyabanana/energy-bidding-service/internal/handlers"
	"github.com/senyabanana/energy-bidding-service/internal/repository"
	"github.com/senyabanana/energy-bidding-service/internal/router"
	"github.com/senyabanana/energy-bidding-service/internal/router/config"
	"github.com/senyabanana/energy-bidding-service/internal/services"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal("cannot load config: ", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	runDBMigration(logger, cfg.MigrationURL, cfg.PostgresConn)

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		logger.Fatalf("error initializing database: %v", err)
	}
	defer dbPool.Close()

	bidRepo := repository.NewPostgresBidRepository(dbPool)
	submissionService := services.NewSubmissionService(bidRepo, cfg)
	bidHandler := handlers.NewBidHandler(submissionService, logger, 5*time.Second)

	routes := router.InitRoutes(bidHandler)

	logger.Infof("server is listening on %s...", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, routes); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

func runDBMigration(logger *logrus.Logger, migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		logger.Fatal("cannot create a new migrate instance: ", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		logger.Fatal("failed to run migrate up: ", err)
	}
	logger.Info("db migrated successfully")
}
