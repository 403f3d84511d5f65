package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"aviatorclient/internal/api"
	"aviatorclient/internal/config"
	"aviatorclient/internal/feed"
	"aviatorclient/internal/game"
	"aviatorclient/internal/ui"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rounds := game.NewRoundStore(log)
	bets := game.NewBetStore(log)
	ctrl := game.NewController(rounds, bets, cfg.RestartDelay, log)
	go ctrl.Run(ctx)

	authority := api.New(cfg.ServerURL, cfg.RequestTimeout, log)
	gateway := game.NewGateway(ctrl, authority, cfg.RequestTimeout, log)

	profile, err := authority.Profile(ctx)
	if err != nil {
		log.Fatalw("[MAIN] cannot load profile, is the server up?", "url", cfg.ServerURL, "err", err)
	}
	ctrl.SeedProfile(profile)

	go func() {
		if err := feed.New(cfg.FeedURL, game.NewIngress(ctrl, log), log).Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("[MAIN] feed terminated", "err", err)
		}
	}()

	if err := ui.New(ctrl, gateway, log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorw("[MAIN] ui terminated", "err", err)
	}
}
