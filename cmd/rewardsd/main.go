package main

import (
	"log"
	"net/http"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rewardsd/config"
	"rewardsd/engine"
	"rewardsd/models"
	"rewardsd/observability"
	"rewardsd/observability/logging"
	"rewardsd/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	var fileCfg *logging.FileConfig
	if cfg.LogFile != "" {
		fileCfg = &logging.FileConfig{Path: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB}
	}
	logger := logging.Setup("rewardsd", cfg.Env, fileCfg)

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Fatalf("reward params error: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	eng, err := engine.New(db, params,
		engine.WithLogger(logger),
		engine.WithMetrics(observability.Engine()),
	)
	if err != nil {
		log.Fatalf("engine init error: %v", err)
	}

	srv := server.New(server.Config{Engine: eng})

	addr := ":" + cfg.Port
	logger.Info("starting rewardsd", "addr", addr)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
