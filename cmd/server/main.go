package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-service/internal/config"
	"access-service/internal/factory"
	"access-service/internal/util"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	util.Init(cfg)

	f, err := factory.NewFactory(cfg)
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}

	router := f.Router()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tlsCfg := cfg.Server.TLS
	if !tlsCfg.Enabled {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
		startServer(f, server, cfg)
		return
	}

	server.TLSConfig = f.TLSManager().ServerConfig()
	if cfg.IsProduction() && tlsCfg.AutoCert {
		startProductionServerWithAutoCert(f, server, cfg)
		return
	}

	util.Info("Starting HTTPS server",
		util.String("environment", cfg.Environment),
		util.Int("port", tlsCfg.Port),
		util.Bool("auto_cert", tlsCfg.AutoCert),
	)
	startServer(f, server, cfg)
}

func startProductionServerWithAutoCert(f *factory.Factory, server *http.Server, cfg *config.Config) {
	autoCertManager := f.TLSManager().AutoCert()
	if autoCertManager == nil {
		util.Fatal("AutoCert manager is not available in production")
	}

	// ACME challenges only
	challengeServer := &http.Server{
		Addr:              ":80",
		Handler:           autoCertManager.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		util.Info("Starting ACME challenge server on port 80")
		if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("ACME challenge server failed", util.ErrorField(err))
		}
	}()

	go func() {
		util.Info("Starting HTTPS server with AutoCert",
			util.String("domain", cfg.Server.TLS.Domain),
			util.String("address", server.Addr),
		)
		if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("HTTPS AutoCert server failed", util.ErrorField(err))
		}
	}()

	waitForShutdown(f, server, challengeServer)
}

func startServer(f *factory.Factory, server *http.Server, cfg *config.Config) {
	tlsCfg := cfg.Server.TLS

	go func() {
		var err error
		switch {
		case !tlsCfg.Enabled:
			err = server.ListenAndServe()
		case !tlsCfg.AutoCert && tlsCfg.CertFile != "" && tlsCfg.KeyFile != "":
			err = server.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		default:
			// certificates come from the manager's GetCertificate
			err = server.ListenAndServeTLS("", "")
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("storage_backend", cfg.Storage.Backend),
		util.Bool("tls_enabled", tlsCfg.Enabled),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server)
}

func waitForShutdown(f *factory.Factory, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	_ = f.Close()
}
