package main

import (
	"context"
	"os"

	"pool-service/config"
	"pool-service/internal/database"
	"pool-service/internal/logger"
	"pool-service/internal/migrate"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	if err := migrate.MigratePoolDB(context.Background(), db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}
