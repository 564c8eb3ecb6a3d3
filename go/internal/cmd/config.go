package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.1.0"

type Config struct {
	Port       int    `validate:"min=1,max=65535"`
	CORSOrigin string `validate:"required"`
	LogLevel   string `validate:"oneof=trace debug info warn error"`

	CatalogSource string `validate:"oneof=embedded file postgres"`
	CatalogFile   string `validate:"required_if=CatalogSource file"`
	QuizName      string `validate:"required_if=CatalogSource postgres"`

	GracePeriod      time.Duration `validate:"gt=0"`
	TickInterval     time.Duration `validate:"gt=0"`
	PreRoll          time.Duration `validate:"gte=0"`
	QuestionTicks    int           `validate:"min=1"`
	ExplanationTicks int           `validate:"min=1"`
	LeaderboardTicks int           `validate:"min=1"`
	PointsPerAnswer  int           `validate:"min=1"`

	GeoBaseURL string        `validate:"omitempty,url"` // empty disables country lookup
	GeoTimeout time.Duration `validate:"gt=0"`

	NATSURL           string `validate:"omitempty,url"` // empty disables the lifecycle feed
	FeedSubjectPrefix string `validate:"required"`
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("failed to validate config: %w", err)
		}

		msgs := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "globalquiz",
		Short:   "Real-time coordination server for the global trivia game.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVarP(&cfg.Port, "port", "p", 5000, "port to listen on (env: QUIZ_PORT)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", "*", "allowed CORS origin (env: QUIZ_CORS_ORIGIN)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "trace, debug, info, warn or error (env: QUIZ_LOG_LEVEL)")

	fs.StringVar(&cfg.CatalogSource, "catalog-source", "embedded", "embedded, file or postgres (env: QUIZ_CATALOG_SOURCE)")
	fs.StringVar(&cfg.CatalogFile, "catalog-file", "", "YAML catalog path for --catalog-source=file (env: QUIZ_CATALOG_FILE)")
	fs.StringVar(&cfg.QuizName, "quiz-name", "programming", "quiz to load for --catalog-source=postgres (env: QUIZ_QUIZ_NAME)")

	fs.DurationVar(&cfg.GracePeriod, "grace-period", 30*time.Second, "how long a disconnected nickname stays reserved (env: QUIZ_GRACE_PERIOD)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", time.Second, "length of one countdown tick (env: QUIZ_TICK_INTERVAL)")
	fs.DurationVar(&cfg.PreRoll, "preroll", 3*time.Second, "delay between round start and the first question (env: QUIZ_PREROLL)")
	fs.IntVar(&cfg.QuestionTicks, "question-ticks", 15, "ticks to answer a question (env: QUIZ_QUESTION_TICKS)")
	fs.IntVar(&cfg.ExplanationTicks, "explanation-ticks", 5, "ticks the explanation is shown (env: QUIZ_EXPLANATION_TICKS)")
	fs.IntVar(&cfg.LeaderboardTicks, "leaderboard-ticks", 10, "ticks the leaderboard is shown (env: QUIZ_LEADERBOARD_TICKS)")
	fs.IntVar(&cfg.PointsPerAnswer, "points-per-answer", 100, "points for a correct answer (env: QUIZ_POINTS_PER_ANSWER)")

	fs.StringVar(&cfg.GeoBaseURL, "geo-base-url", "http://ip-api.com/json/", "geolocation endpoint, empty to disable (env: QUIZ_GEO_BASE_URL)")
	fs.DurationVar(&cfg.GeoTimeout, "geo-timeout", 3*time.Second, "geolocation lookup timeout (env: QUIZ_GEO_TIMEOUT)")

	fs.StringVar(&cfg.NATSURL, "nats-url", "", "NATS server for the lifecycle feed, empty to disable (env: QUIZ_NATS_URL)")
	fs.StringVar(&cfg.FeedSubjectPrefix, "feed-subject-prefix", "quiz.events", "subject prefix for lifecycle events (env: QUIZ_FEED_SUBJECT_PREFIX)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("globalquiz v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
