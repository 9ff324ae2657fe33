package main

import (
	"log"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"

	"microblog/internal/db"
	"microblog/internal/server"
)

type config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	DBPath        string        `env:"DB_PATH" envDefault:"blog.db"`
	TemplateDir   string        `env:"TEMPLATE_DIR" envDefault:"web/templates"`
	StaticDir     string        `env:"STATIC_DIR" envDefault:"web/static"`
	MediaDir      string        `env:"MEDIA_DIR" envDefault:"web/media"`
	IndexCacheTTL time.Duration `env:"INDEX_CACHE_TTL" envDefault:"20s"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	srv, err := server.New(database, server.Options{
		TemplateDir:   cfg.TemplateDir,
		StaticDir:     cfg.StaticDir,
		MediaDir:      cfg.MediaDir,
		IndexCacheTTL: cfg.IndexCacheTTL,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		log.Fatal(err)
	}
}
