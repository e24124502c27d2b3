// Command trk is the issuekit tracker CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/config"
	"github.com/edavis10/issuekit/internal/lifecycle"
	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/factory"
	"github.com/edavis10/issuekit/internal/telemetry"
	"github.com/edavis10/issuekit/internal/types"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	dirFlag   string
	loginFlag string

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "trk",
	Short:         "Issue tracker with subtasks, relations and workflows",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := telemetry.Init(rootCtx, "trk", Version); err != nil {
		slog.Warn("telemetry init failed", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	}()

	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "tracker data directory (default .issuekit, or TRK_DIR)")
	rootCmd.PersistentFlags().StringVar(&loginFlag, "login", "", "act as this user (default from config or TRK_USER_LOGIN)")

	rootCmd.AddCommand(
		initCmd,
		newCmd,
		showCmd,
		listCmd,
		updateCmd,
		moveCmd,
		copyCmd,
		relateCmd,
		unrelateCmd,
		historyCmd,
		deleteCmd,
		workflowCmd,
	)

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "trk: %v\n", err)
		os.Exit(1)
	}
}

func dataDir() string {
	if dirFlag != "" {
		return dirFlag
	}
	return config.Dir()
}

// app bundles everything an online command needs.
type app struct {
	cfg  *config.Config
	svc  *lifecycle.Service
	user *types.User
}

// openApp loads config, opens the configured backend and resolves the
// acting user. The returned closer flushes and closes the store.
func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load(dataDir())
	if err != nil {
		return nil, nil, err
	}

	store, err := factory.Open(ctx, cfg.Backend(), cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.Backend(), err)
	}
	store = telemetry.WrapStore(store)
	closer := func() {
		if err := store.Close(); err != nil {
			slog.Warn("close storage", "error", err)
		}
	}

	login := loginFlag
	if login == "" {
		login = cfg.Login()
	}
	if login == "" {
		closer()
		return nil, nil, errors.New("no acting user: pass --login or set user.login in config")
	}
	user, err := store.GetUserByLogin(ctx, login)
	if err != nil {
		closer()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("unknown user %q", login)
		}
		return nil, nil, err
	}

	svc := lifecycle.New(store, lifecycle.WithNotifier(buildNotifier(cfg)))
	return &app{cfg: cfg, svc: svc, user: user}, closer, nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	channels := []notify.Channel{notify.LogChannel{}}
	if cfg.MailEnabled() {
		channels = append(channels, notify.MailChannel{})
	}
	if url := cfg.WebhookURL(); url != "" {
		channels = append(channels, notify.WebhookChannel{URL: url})
	}
	return notify.NewDispatcher(slog.Default(), channels...)
}
