package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrutinyhq/proctor-go/clients"
	"github.com/scrutinyhq/proctor-go/internal/auth"
	"github.com/scrutinyhq/proctor-go/internal/history"
	"github.com/scrutinyhq/proctor-go/internal/lobby"
	"github.com/scrutinyhq/proctor-go/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	role := flag.String("role", "student", "role in the lobby: teacher or student")
	sessionID := flag.String("session", "", "session id to watch")
	pin := flag.String("pin", "", "join a session by PIN instead of id")
	start := flag.Bool("start", false, "issue a start command once the lobby is visible (teacher only)")
	duration := flag.Int("duration", 0, "quiz duration in seconds for -start (0 = backend default)")
	stats := flag.Bool("stats", false, "print local attempt stats and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *stats {
		printStats(config)
		return
	}

	tokens := auth.NewEnvProvider(config.API.TokenEnv)
	client := clients.NewSessionClient(config.API.BaseURL, tokens)

	cache := auth.NewRoleCache()
	cache.SetRole(*role)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A PIN join resolves the session (and maybe quiz) id first.
	if *pin != "" {
		joined, err := client.Join(ctx, *pin)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to join session")
		}
		cache.SetSession(joined.SessionID, joined.QuizID)
		log.Info().
			Str("session_id", joined.SessionID).
			Str("quiz_id", joined.QuizID).
			Msg("joined session")
	} else if *sessionID != "" {
		cache.SetSession(*sessionID, "")
	} else {
		log.Fatal().Msg("either -session or -pin is required")
	}

	id, _ := cache.Session()
	controller := lobby.NewController(id, lobby.Role(*role), client)
	unsubscribe := controller.Subscribe(func(snap lobby.Snapshot) {
		evt := log.Info().Str("state", string(snap.State))
		if snap.Session != nil {
			evt = evt.
				Str("pin", snap.Session.PIN).
				Int("participants", len(snap.Session.Participants))
		}
		if snap.QuizReady {
			evt = evt.Str("quiz_id", snap.Session.QuizID)
		}
		evt.Bool("quiz_pending", snap.QuizPending).Msg("lobby")
	})
	defer unsubscribe()

	var pollerOpts []session.PollerOption
	if d := config.pollInterval(); d > 0 {
		pollerOpts = append(pollerOpts, session.WithInterval(d))
	}
	poller := session.NewPoller(client, pollerOpts...)

	started := false
	cutoffArmed := false
	sub := poller.Subscribe(ctx, id, session.Listener{
		OnSession: func(s *session.Session) {
			controller.ApplyPoll(s)

			if *start && !started && lobby.Role(*role) == lobby.RoleTeacher {
				started = true
				if err := controller.Start(ctx, *duration); err != nil {
					log.Error().Err(err).Msg("failed to start session")
				}
			}

			if s.EndsAt != nil && !cutoffArmed {
				cutoffArmed = true
				watchCutoff(ctx, *s.EndsAt)
			}
		},
		OnAttempt: func(attempt session.PollAttempt) {
			log.Warn().
				Str("outcome", string(attempt.Outcome)).
				Str("message", attempt.Message).
				Msg("poll attempt failed; keeping last snapshot")
		},
	})
	defer sub.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	sub.Stop()
	cancel()
}

// watchCutoff runs a quiz timer for the session's submission window and
// logs the countdown.
func watchCutoff(ctx context.Context, endsAt time.Time) {
	timer := lobby.NewQuizTimer(endsAt,
		lobby.OnTick(func(remaining time.Duration) {
			log.Debug().Dur("remaining", remaining).Msg("quiz window")
		}),
		lobby.OnExpire(func() {
			log.Info().Msg("quiz window expired; submissions are closed")
		}),
	)
	go timer.Run(ctx)
}

func printStats(config *Config) {
	store, err := history.Open(config.History.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer store.Close()

	ctx := context.Background()
	st, err := store.Stats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read stats")
	}
	log.Info().
		Int("completed", st.Completed).
		Float64("average_score_pct", st.AverageScorePct).
		Int("total_warnings", st.TotalWarnings).
		Msg("attempt stats")

	attempts, err := store.RecentAttempts(ctx, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list attempts")
	}
	for _, a := range attempts {
		log.Info().
			Str("title", a.Title).
			Str("subject", a.Subject).
			Int("score", a.Score).
			Int("total_questions", a.TotalQuestions).
			Time("submitted_at", a.SubmittedAt).
			Msg("attempt")
	}
}
