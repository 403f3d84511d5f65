package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"aviatorclient/internal/config"
	"aviatorclient/internal/sim"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	wallet := sim.NewWallet(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	server := sim.New(cfg.BettingWindow, cfg.RoundPause, wallet, log)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		log.Infow("[MAIN] shutting down")
		if err := server.Close(); err != nil {
			log.Errorw("[MAIN] shutdown error", "err", err)
		}
	}()

	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatalw("[MAIN] server stopped", "err", err)
	}
}
