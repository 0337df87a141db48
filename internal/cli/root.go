// Package cli provides the command-line interface for cfc-transfer-bot.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/config"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/filter"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/notify"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/relay"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/seen"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "cfc-transfer-bot",
	Short: "Relay flaired subreddit posts to a Discord webhook",
	Long: "cfc-transfer-bot watches a subreddit for new submissions, keeps the ones " +
		"carrying an allow-listed link flair, and forwards them to a Discord webhook " +
		"as embed notifications. It runs until interrupted.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("cfc-transfer-bot %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"subreddit": cfg.Subreddit,
		"flairs":    fmt.Sprintf("%s, %s", cfg.TargetFlairs[0], cfg.TargetFlairs[1]),
		"interval":  cfg.PollInterval,
	}).Info("starting relay")

	store, err := seen.Open(cfg.SeenFile, seen.DefaultLimit)
	if err != nil {
		log.WithError(err).Warn("seen file unreadable, starting with an empty set")
	} else {
		log.Infof("loaded %d seen submissions", store.Len())
	}

	poller, err := feed.NewReddit(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent, cfg.Subreddit)
	if err != nil {
		return fmt.Errorf("create reddit poller: %w", err)
	}

	flairs, err := filter.New(cfg.TargetFlairs[0], cfg.TargetFlairs[1])
	if err != nil {
		return fmt.Errorf("create flair filter: %w", err)
	}

	notifier, err := notify.New(cfg.DiscordWebhookURL, cfg.Subreddit, cfg.TargetFlairs[0])
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	r := relay.New(poller, flairs, notifier, store, relay.Config{
		PollInterval: cfg.PollInterval,
		CatchupLimit: cfg.CatchupLimit,
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		SendDelay:    cfg.SendDelay,
		FlushEvery:   cfg.FlushEvery,
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.Run(ctx)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
