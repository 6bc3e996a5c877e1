package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"classgate/internal/codes"
	"classgate/internal/config"
	"classgate/internal/domain"
	"classgate/internal/engine"
	"classgate/internal/session"
	"classgate/internal/store"
)

func main() {
	room := flag.String("room", "", "room to join")
	accessCode := flag.String("code", "", "access code for the room")
	flag.Parse()
	if *room == "" || *accessCode == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	registry := codes.NewRegistry(st)
	registry.SetCodeLength(cfg.CodeLength)
	if err := registry.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load code registry")
	}

	eng, err := engine.Dial(ctx, cfg.EngineURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to reach conferencing engine")
	}

	roomName := domain.RoomName(*room)
	m := session.New(roomName, *accessCode, registry, st, eng)
	if _, err := m.Validate(); err != nil {
		log.Fatal().Err(err).Str("room", *room).Msg("access code rejected")
	}

	mgr := session.NewManager()
	runCtx, stop := context.WithCancel(ctx)
	mgr.Bind(ctx, roomName, m, stop)

	// Follow the room's session records so other clients' runs show up in
	// the log alongside our own.
	sub := st.SubscribeSessions(roomName)
	go func() {
		for ev := range sub.C {
			log.Info().Str("session", string(ev.Session.ID)).Str("status", string(ev.Session.Status)).Msg("session change")
		}
	}()

	go m.Run(runCtx)
	log.Info().Str("room", *room).Msg("Classgate client joined")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sub.Unsubscribe()
	mgr.Shutdown(context.Background())
	log.Info().Msg("Client exited gracefully")
}
