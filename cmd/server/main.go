// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/router"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	utils.ConfigureLogger(cfg.Log, cfg.IsProduction())

	// Open the record store
	st, closeStore, err := store.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open store")
	}
	defer closeStore()

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	svcs, err := services.New(context.Background(), cfg, st)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}

	// Initialize router
	r := router.Initialize(svcs, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Environment,
			"store":       cfg.Store.Driver,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
		return
	}

	logrus.Info("Server exited")
}
