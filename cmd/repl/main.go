package main

import (
	"FolioDb/helpers"
	"FolioDb/internal/config"
	l "FolioDb/internal/logger"
	"FolioDb/internal/repl"
	"FolioDb/internal/server"
	"FolioDb/internal/store"
	"flag"
)

func main() {
	configPath := flag.String("config", "folio.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	level := l.ParseLevel(cfg.LogLevel)
	replLogger := l.New("repl", cfg.LogDir, level)
	l.New("store", cfg.LogDir, level)

	st := store.New()
	go server.StartServer(cfg, st)
	helpers.WaitForServer(cfg.Addr)

	replLogger.Info("Starting FolioDB server on %s", cfg.Addr)
	repl.Repl(st)
	replLogger.Info("Shutting down FolioDB server")
}
