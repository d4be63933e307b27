package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/calendar"
	"smart-todo/internal/config"
	"smart-todo/internal/contexts"
	"smart-todo/internal/observability"
	"smart-todo/internal/tasks"
)

const (
	stateDirName = ".smart-todo"
	sessionKey   = "session"
)

type rootOptions struct {
	configPath string
	stateDir   string
	verbose    bool
}

// app is what every command works against: one signed-in (or not) user
// on this machine.
type app struct {
	cfg     *config.Config
	session *auth.Provider

	tasks      *tasks.Repository
	categories *tasks.CategoryRepository
	contexts   *contexts.Repository
	relay      *apiclient.Client

	in  *bufio.Reader
	out io.Writer
	now func() time.Time
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	a := &app{in: bufio.NewReader(in), out: out, now: time.Now}

	rootCmd := &cobra.Command{
		Use:           "todoctl",
		Short:         "todoctl - smart todo dashboard for the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), opts)
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.smart-todo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "where the session is kept (default ~/.smart-todo)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(loginCmd(a))
	rootCmd.AddCommand(loginGoogleCmd(a))
	rootCmd.AddCommand(signupCmd(a))
	rootCmd.AddCommand(logoutCmd(a))
	rootCmd.AddCommand(whoamiCmd(a))
	rootCmd.AddCommand(profileCmd(a))
	rootCmd.AddCommand(tasksCmd(a))
	rootCmd.AddCommand(contextsCmd(a))
	rootCmd.AddCommand(categoriesCmd(a))
	rootCmd.AddCommand(calendarCmd(a))

	return rootCmd
}

func (a *app) setup(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// stdout belongs to command output; logs go to stderr
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	observability.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	stateDir := opts.stateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locate home directory: %w", err)
		}
		stateDir = filepath.Join(home, stateDirName)
	}

	a.cfg = config.Load()
	configPath := opts.configPath
	if configPath == "" {
		configPath = filepath.Join(stateDir, "config.yaml")
	}
	if err := config.LoadFile(configPath, a.cfg); err != nil && (opts.configPath != "" || !errors.Is(err, os.ErrNotExist)) {
		return err
	}

	hc := &http.Client{Timeout: a.cfg.HTTPTimeout}
	idp := auth.NewGoTrue(a.cfg.AuthURL, a.cfg.AuthAnonKey, hc)
	a.session = auth.NewProvider(idp, auth.NewFileStore(stateDir), sessionKey,
		auth.WithProfileRefetch(a.cfg.ProfileRefreshAttempts, 500*time.Millisecond))
	if err := a.session.Init(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	a.session.Subscribe(logSessionChange)

	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(a.cfg.HTTPTimeout),
		apiclient.WithHeaders(a.clientHeaders),
	}
	backend := apiclient.New(a.cfg.APIBaseURL, a.session, clientOpts...)
	notifier := calendar.NewRelayNotifier(a.cfg.RelayURL, a.session, a.session, clientOpts...)

	a.tasks = tasks.NewRepository(backend, notifier)
	a.categories = tasks.NewCategoryRepository(backend)
	a.contexts = contexts.NewRepository(backend)
	a.relay = apiclient.New(a.cfg.RelayURL, a.session,
		append(clientOpts, apiclient.WithHeaders(calendar.ProviderHeaders(a.session)))...)
	return nil
}

// logSessionChange traces sign-ins, token refreshes and sign-outs under -v.
func logSessionChange(s *auth.Session) {
	log := observability.Logger()
	if s == nil {
		log.Debug("session ended")
		return
	}
	log.Debug("session updated", "user", s.User.Email, "expires_at", s.ExpiresAt)
}

// clientHeaders identifies the CLI to the relay's analytics.
func (a *app) clientHeaders(context.Context) http.Header {
	h := http.Header{}
	h.Set("X-Platform", "cli")
	h.Set("X-App-Version", version)
	return h
}

// recordEvent reports a client-side event. Failures are only logged.
func (a *app) recordEvent(ctx context.Context, event string, count int) {
	body := map[string]any{"event": event, "count": count}
	if err := a.relay.Post(ctx, "/analytics/events", body, nil); err != nil {
		observability.LoggerFromContext(ctx).Debug("analytics event not recorded", "event", event, "error", err)
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// prompt reads one line; used for passwords and confirmations.
func (a *app) prompt(label string) (string, error) {
	a.printf("%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) confirm(_ context.Context, question string) (bool, error) {
	answer, err := a.prompt(question + " [y/N]")
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
