package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"e2bridge/internal/app"
	"e2bridge/internal/config"
	"e2bridge/pkg/utils"
)

// loadEnvFile loads environment variables from a .env file if present.
// It attempts the current directory first, then walks parent directories
// up to the root.
func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment variables from .env in current directory")
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Warnf("could not determine current directory: %v", err)
		return
	}

	for dir := workDir; dir != "/"; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			log.Infof("loaded environment variables from %s", envPath)
			return
		}
	}

	log.Info("no .env file found, using existing environment")
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	loadEnvFile()

	disableAuth := flag.Bool("disable-auth", false, "Disable master API key validation and accept all requests")
	checkAuth := flag.Bool("check-auth", false, "Refresh the upstream session token once and exit")
	flag.Parse()

	if *disableAuth {
		os.Setenv("DISABLE_AUTH", "true")
		log.Warn("client authentication is disabled, all requests will be accepted")
	}

	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	a := app.New(cfg)

	if *checkAuth {
		cred, err := a.Creds().Refresh(context.Background())
		if err != nil {
			log.Fatalf("credential check failed: %v", err)
		}
		fmt.Printf("session token ok: %s (user %s, expires %s)\n",
			utils.MaskToken(cred.Token), cred.UserID, cred.ExpiresAt.Format(time.RFC3339))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: a.Router,
	}

	go func() {
		log.Infof("%s v%s listening on %s", config.AppName, config.AppVersion, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not start server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error during server shutdown: %v", err)
	} else {
		log.Info("server gracefully stopped")
	}
}
