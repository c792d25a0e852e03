// Package cmd provides the CLI commands for ntlsync.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/config"
	"github.com/fclairamb/ntlsync/internal/portal"
	"github.com/fclairamb/ntlsync/internal/store"
	"github.com/fclairamb/ntlsync/internal/sync"
	"github.com/fclairamb/ntlsync/internal/version"
)

var (
	// konfig is the runtime configuration, loaded before any command runs.
	konfig = config.Default()
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// setupLogging configures the global logger based on the verbose flag and NTL_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch konfig.LogFormat {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	if level == slog.LevelDebug {
		slog.Debug("verbose logging enabled", "version", version.String())
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "ntlsync",
		Usage:   "Incrementally mirror NTULearn course content to a local directory",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Username including domain name (e.g. username@student.main.ntu.edu.sg)",
				Sources: cli.EnvVars("NTL_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password, prompted for when absent",
				Sources: cli.EnvVars("NTL_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "download-to",
				Aliases: []string{"d"},
				Usage:   "Download destination",
				Sources: cli.EnvVars("NTL_DIR"),
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			cfg, err := config.Load()
			if err != nil {
				return ctx, err
			}
			konfig = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			coursesCommand(),
			syncCommand(),
			treeCommand(),
			historyCommand(),
		},
	}
}

// coursesCommand creates the courses subcommand.
func coursesCommand() *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "List the courses you are taking",
		Flags: []cli.Flag{verboseFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := login(ctx, cmd)
			if err != nil {
				return err
			}

			courses, err := client.Courses(ctx)
			if err != nil {
				return fmt.Errorf("list courses: %w", err)
			}

			displayCourses(cmd.Root().Writer, courses)
			return nil
		},
	}
}

// syncCommand creates the sync subcommand.
func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download new course content, reusing the links resolved by previous runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "ignore",
				Usage: "Comma separated list of courses to ignore, matched if the course name contains a value (e.g. CE2006)",
			},
			&cli.BoolFlag{
				Name:  "ignore-files",
				Usage: "Skip documents, useful if only downloading lectures",
			},
			&cli.BoolFlag{
				Name:  "download-recorded-lectures",
				Usage: "Download recorded lectures (large files)",
			},
			&cli.StringFlag{
				Name:  "sem",
				Usage: "Only sync courses whose name starts with this prefix (e.g. 19S2)",
			},
			&cli.BoolFlag{
				Name:  "prompt",
				Usage: "Ask before downloading each recorded lecture",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("download-to")
			if dir == "" {
				return apperrors.ErrDownloadDirRequired
			}

			client, err := login(ctx, cmd)
			if err != nil {
				return err
			}

			files, storage, err := openDownloadDir(ctx, dir)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			syncer := sync.NewSyncer(client, storage, files,
				sync.WithLogger(slog.Default()),
				sync.WithBaseURL(konfig.BaseURL),
				sync.WithPrompter(newLinePrompter(os.Stdin, out)),
			)

			slog.InfoContext(ctx, "downloading", "dir", dir)
			result, err := syncer.Sync(ctx, sync.Options{
				Semester:                 cmd.String("sem"),
				Ignore:                   sync.ParseIgnoreList(cmd.String("ignore")),
				IgnoreFiles:              cmd.Bool("ignore-files"),
				DownloadRecordedLectures: cmd.Bool("download-recorded-lectures"),
				Prompt:                   cmd.Bool("prompt"),
			})
			if result != nil {
				displaySyncResult(out, result)
			}
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return nil
		},
	}
}

// treeCommand creates the tree subcommand.
func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Print the tree persisted in the download directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or yaml",
				Value:   formatText,
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("download-to")
			if dir == "" {
				return apperrors.ErrDownloadDirRequired
			}

			storage, err := sync.OpenStorage(ctx, dir, sync.WithStorageLogger(slog.Default()))
			if err != nil {
				return err
			}

			return displayTree(cmd.Root().Writer, storage.Tree(), strings.ToLower(cmd.String("format")))
		},
	}
}

// historyCommand creates the history subcommand.
func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List the recorded versions of the persisted tree (NTL_HISTORY=true)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of versions to show (0 = all)",
				Value:   defaultHistoryLimit,
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("download-to")
			if dir == "" {
				return apperrors.ErrDownloadDirRequired
			}

			history, err := store.OpenExistingHistory(filepath.Join(dir, sync.StateDir), store.WithHistoryLogger(slog.Default()))
			if errors.Is(err, apperrors.ErrNoHistory) {
				displayRevisions(cmd.Root().Writer, nil)
				return nil
			}
			if err != nil {
				return err
			}

			revisions, err := history.Revisions(ctx, int(cmd.Int("limit")))
			if err != nil {
				return err
			}

			displayRevisions(cmd.Root().Writer, revisions)
			return nil
		},
	}
}

const defaultHistoryLimit = 20

// login authenticates against the portal with the configured credentials.
func login(ctx context.Context, cmd *cli.Command) (*portal.Client, error) {
	creds := config.Credentials{
		Username: cmd.String("username"),
		Password: cmd.String("password"),
	}
	if creds.Username != "" && creds.Password == "" {
		password, err := readPassword()
		if err != nil {
			return nil, err
		}
		creds.Password = password
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	client, err := portal.NewClient(
		portal.WithBaseURL(konfig.BaseURL),
		portal.WithTimeout(konfig.HTTPTimeout),
		portal.WithRateInterval(konfig.RateInterval),
		portal.WithMaxRetries(konfig.MaxRetries),
		portal.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, err
	}

	if err := client.Login(ctx, creds.Username, creds.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return client, nil
}

// readPassword prompts for the password without echo. It fails when stdin is not a terminal.
//
//nolint:forbidigo // CLI user prompt
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in an int
	if !term.IsTerminal(fd) {
		return "", apperrors.ErrPasswordRequired
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

// openDownloadDir opens the download directory and its persisted tree.
func openDownloadDir(ctx context.Context, dir string) (*store.LocalStore, *sync.Storage, error) {
	files, err := store.NewLocalStore(dir, store.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("open download dir: %w", err)
	}

	opts := []sync.StorageOption{sync.WithStorageLogger(slog.Default())}
	if konfig.History {
		if err := files.Mkdir(ctx, sync.StateDir); err != nil {
			return nil, nil, err
		}
		history, err := store.OpenHistory(filepath.Join(dir, sync.StateDir), store.WithHistoryLogger(slog.Default()))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sync.WithHistory(history))
	}

	storage := sync.NewStorage(files, opts...)
	if err := storage.Load(ctx); err != nil {
		return nil, nil, err
	}
	return files, storage, nil
}
