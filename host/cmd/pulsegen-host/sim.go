package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"pulsegen/core"
	"pulsegen/host/config"
	"pulsegen/host/simserver"
)

var (
	simListen string

	simCmd = &cobra.Command{
		Use:   "sim",
		Short: "Run a simulated generator",
		Long:  "Run the generator on simulated hardware and serve POST /submit, GET /status, GET /events and GET /trace.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if simListen != "" {
				cfg.Sim.Listen = simListen
			}
			return runSim(cfg)
		},
	}
)

func init() {
	simCmd.Flags().StringVarP(&simListen, "listen", "l", "", "HTTP listen address (overrides config)")
}

// logOutput returns the log destination: a rotating file when one is configured
func logOutput(c config.LogConfig) io.Writer {
	if c.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

func runSim(cfg *config.Config) error {
	out := logOutput(cfg.Log)
	if c, ok := out.(io.Closer); ok {
		defer c.Close()
	}
	logger := log.New(out, "", log.LstdFlags)
	devLog := core.NewLogger(func(s string) { logger.Println(s) }, cfg.LogLevel(), "sim")

	logger.Printf("Starting pulse generator simulator with config: %+v", cfg.Sim)

	s := simserver.NewSimulator(cfg.Sim, cfg.SchedulerConfig(), devLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	httpServer := &http.Server{
		Addr:         cfg.Sim.Listen,
		Handler:      simserver.New(s, devLog, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.Sim.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var result error
	select {
	case <-quit:
	case result = <-serveErr:
		logger.Printf("HTTP server failed: %v", result)
	}

	logger.Println("Shutting down simulator...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown error: %v", err)
	}

	cancel()
	if err := <-runDone; err != nil {
		logger.Printf("Device stopped with error: %v", err)
	}
	s.Device.DumpEvents(func(line string) { logger.Println(line) })
	logger.Println("Simulator stopped")
	return result
}
