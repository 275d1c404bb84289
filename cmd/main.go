package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/quizlive/internal/config"
	"github.com/victornm/quizlive/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

const defaultConfigPath = "config.yaml"

func loadConfig() (server.Config, error) {
	var c server.Config

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		p = defaultConfigPath
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	if c.HTTP.Port == 0 {
		return c, fmt.Errorf("http.port is required")
	}
	if c.Auth.JWTSecret == "" {
		return c, fmt.Errorf("auth.jwtsecret is required")
	}
	if c.Postgres.Game.Addr == "" {
		return c, fmt.Errorf("postgres.game.addr is required")
	}

	return c, nil
}
