package main

import (
	"FolioDb/internal/config"
	l "FolioDb/internal/logger"
	"FolioDb/internal/repl"
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
	l.New("repl", cfg.LogDir, level)
	l.New("store", cfg.LogDir, level)

	repl.Repl(store.New())
}
