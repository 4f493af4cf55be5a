package main

import (
	"github.com/joho/godotenv"

	"github.com/iliyamo/seat-hold-engine/internal/cli"
	"github.com/iliyamo/seat-hold-engine/internal/config"
	"github.com/iliyamo/seat-hold-engine/internal/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadLedger()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	cli.Execute(cli.MySQLEngine(cfg), cfg.JWTSecret)
}
