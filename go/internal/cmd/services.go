package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/clients/geo_client"
	"github.com/mcdev12/globalquiz/go/internal/feed"
	"github.com/mcdev12/globalquiz/go/internal/game"
	"github.com/mcdev12/globalquiz/go/internal/gateway"
	"github.com/mcdev12/globalquiz/go/internal/identity"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/mcdev12/globalquiz/go/internal/presence"
	"github.com/mcdev12/globalquiz/go/internal/quiz"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Registry *identity.Registry
	Presence *presence.Tracker
	Engine   *game.Engine
	Gateway  *gateway.Service
	Feed     *feed.Publisher // nil when the feed is disabled

	feedSink *feed.JetStreamSink
	db       *pgxpool.Pool
	wg       sync.WaitGroup
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Catalog → Registry → Broadcaster → Engine → Gateway
	s := &Services{}
	clock := clockwork.NewRealClock()

	catalog, err := s.loadCatalog(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	var resolver identity.CountryResolver
	if cfg.GeoBaseURL != "" {
		resolver = geo_client.NewIPAPIClient(cfg.GeoBaseURL, cfg.GeoTimeout)
	}
	s.Registry = identity.NewRegistry(identity.Config{
		GracePeriod:   cfg.GracePeriod,
		LookupTimeout: cfg.GeoTimeout,
	}, resolver, clock)
	s.Presence = presence.NewTracker(s.Registry)

	var publisher game.Publisher
	if cfg.NATSURL != "" {
		jsConfig := feed.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATSURL
		jsConfig.SubjectPrefix = cfg.FeedSubjectPrefix

		sink, err := feed.NewJetStreamSink(ctx, jsConfig)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up lifecycle feed: %w", err)
		}
		s.feedSink = sink
		s.Feed = feed.NewPublisher(sink, clock)
		publisher = s.Feed
	}

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.CheckOrigin = originChecker(cfg.CORSOrigin)
	connections := gateway.NewConnectionManager(connConfig)
	broadcaster := gateway.NewRoomBroadcaster(connections, s.Registry, clock)

	s.Engine = game.NewEngine(game.Config{
		Room:             models.GlobalRoom,
		TickInterval:     cfg.TickInterval,
		PreRoll:          cfg.PreRoll,
		QuestionTicks:    cfg.QuestionTicks,
		ExplanationTicks: cfg.ExplanationTicks,
		LeaderboardTicks: cfg.LeaderboardTicks,
		PointsPerAnswer:  cfg.PointsPerAnswer,
	}, catalog, s.Registry, broadcaster, publisher, clock)

	s.Gateway = gateway.NewService(connections, broadcaster, s.Registry, s.Engine, s.Presence)

	return s, nil
}

func (s *Services) loadCatalog(ctx context.Context, cfg *Config) (*quiz.Catalog, error) {
	var (
		catalog *quiz.Catalog
		err     error
	)

	switch cfg.CatalogSource {
	case "file":
		catalog, err = quiz.LoadFile(cfg.CatalogFile)
	case "postgres":
		s.db, err = setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		catalog, err = quiz.NewPostgresRepository(s.db).Load(ctx, cfg.QuizName)
	default:
		catalog = quiz.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s catalog: %w", cfg.CatalogSource, err)
	}

	log.Info().
		Str("source", cfg.CatalogSource).
		Str("theme", catalog.Theme()).
		Str("difficulty", catalog.Difficulty()).
		Int("questions", catalog.Len()).
		Msg("loaded quiz catalog")
	return catalog, nil
}

// Start launches the long-running components
func (s *Services) Start(ctx context.Context) {
	s.goRun(func() { _ = s.Gateway.Start(ctx) })
	s.goRun(func() {
		if err := s.Engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("game engine stopped unexpectedly")
		}
	})
	if s.Feed != nil {
		s.goRun(func() { s.Feed.Run(ctx) })
	}
}

func (s *Services) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every component started by Start has returned
func (s *Services) Wait() {
	s.wg.Wait()
}

func (s *Services) Close() {
	if s.feedSink != nil {
		if err := s.feedSink.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close lifecycle feed")
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	if allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}
