package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	cli "github.com/urfave/cli/v3"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/batch"
	httptransport "github.com/example/workorder-scheduler/internal/http"
	"github.com/example/workorder-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/workorder-scheduler/internal/recurrence"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP listen port; overrides SCHEDULER_HTTP_PORT",
			},
			&cli.StringFlag{
				Name:    "admin-email",
				Usage:   "Bootstrap an administrator with this email when it does not exist",
				Sources: cli.EnvVars("SCHEDULER_ADMIN_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "admin-password",
				Usage:   "Password for the bootstrapped administrator",
				Sources: cli.EnvVars("SCHEDULER_ADMIN_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := loadRuntime(cmd, os.Stdout)
			if err != nil {
				return err
			}
			logger := rt.logger

			s, err := openStore(ctx, rt)
			if err != nil {
				return err
			}
			defer closeStore(s, logger)

			now := time.Now
			users := application.NewUserService(newUserRepositoryAdapter(s), nil, uuid.NewString, now, logger)
			if email := strings.TrimSpace(cmd.String("admin-email")); email != "" {
				if err := bootstrapAdmin(ctx, users, email, cmd.String("admin-password")); err != nil {
					return err
				}
			}

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", rt.cfg.HTTPPort),
				Handler:           newHandler(rt, s, now),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("failed to shutdown server", "error", err)
				}
			}()

			logger.Info("scheduler API listening", "addr", server.Addr, "storage", rt.cfg.Storage, "timezone", rt.location.String())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}

// newHandler wires services and transport over an open store.
func newHandler(rt runtime, s store, now func() time.Time) http.Handler {
	logger := rt.logger
	authService := application.NewAuthServiceWithLogger(
		newCredentialStoreAdapter(s),
		newSessionRepositoryAdapter(s),
		nil,
		uuid.NewString,
		now,
		rt.cfg.SessionTTL,
		logger,
	)
	workOrders := application.NewWorkOrderService(newWorkOrderStoreAdapter(s), application.WorkOrderServiceConfig{
		Location: rt.location,
		Batch:    batchPolicy(rt),
	}, now, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       httptransport.NewAuthHandler(authService, logger),
		WorkOrders: httptransport.NewWorkOrderHandler(workOrders, rt.location, logger),
		Sessions:   authService,
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}

func bootstrapAdmin(ctx context.Context, users *application.UserService, email, password string) error {
	_, err := users.CreateUser(ctx, application.CreateUserParams{
		Email:       email,
		DisplayName: "Administrator",
		Password:    password,
		IsAdmin:     true,
	})
	if err != nil && !errors.Is(err, application.ErrAlreadyExists) {
		return fmt.Errorf("bootstrap administrator: %w", err)
	}
	return nil
}

func batchPolicy(rt runtime) batch.Policy {
	return batch.Policy{
		Concurrency:    rt.cfg.Batch.Concurrency,
		Delay:          rt.cfg.Batch.Delay,
		MaxRetries:     rt.cfg.Batch.MaxRetries,
		InitialBackoff: rt.cfg.Batch.InitialBackoff,
		MaxBackoff:     rt.cfg.Batch.MaxBackoff,
	}
}

type migrationStatusReporter interface {
	MigrationStatus(ctx context.Context) (migration.Status, error)
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations and print the schema version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := loadRuntime(cmd, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}

			s, err := openStore(ctx, rt)
			if err != nil {
				return err
			}
			defer closeStore(s, rt.logger)

			out := cmd.Root().Writer
			reporter, ok := s.(migrationStatusReporter)
			if !ok {
				fmt.Fprintf(out, "storage %q has no schema\n", rt.cfg.Storage)
				return nil
			}
			status, err := reporter.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Fprintf(out, "schema version %s (%d applied, %d pending)\n",
				status.CurrentVersion, len(status.AppliedMigrations), len(status.PendingMigrations))
			return nil
		},
	}
}

func newCreateUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-user",
		Usage: "Register an account that may call the API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Login email", Required: true},
			&cli.StringFlag{Name: "display-name", Usage: "Name recorded in activity logs", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Login password", Required: true, Sources: cli.EnvVars("SCHEDULER_USER_PASSWORD")},
			&cli.BoolFlag{Name: "admin", Usage: "Grant administrator privileges"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := loadRuntime(cmd, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}

			s, err := openStore(ctx, rt)
			if err != nil {
				return err
			}
			defer closeStore(s, rt.logger)

			users := application.NewUserService(newUserRepositoryAdapter(s), nil, uuid.NewString, time.Now, rt.logger)
			user, err := users.CreateUser(ctx, application.CreateUserParams{
				Email:       cmd.String("email"),
				DisplayName: cmd.String("display-name"),
				Password:    cmd.String("password"),
				IsAdmin:     cmd.Bool("admin"),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "created user %s <%s>\n", user.ID, user.Email)
			return nil
		},
	}
}

func newExpandCommand() *cli.Command {
	return &cli.Command{
		Name:  "expand",
		Usage: "Print the occurrences of a recurrence rule without persisting them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Usage: "Template start (RFC 3339)", Required: true},
			&cli.StringFlag{Name: "end", Usage: "Template end (RFC 3339); omit for zero-length occurrences"},
			&cli.StringFlag{Name: "type", Usage: "daily, weekly, monthly or yearly", Value: "daily"},
			&cli.IntFlag{Name: "interval", Usage: "Steps between occurrences", Value: 1},
			&cli.StringFlag{Name: "until", Usage: "Last calendar day (YYYY-MM-DD)", Required: true},
			&cli.BoolFlag{Name: "skip-weekends", Usage: "Drop Saturdays and move Sundays back to Saturday"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := loadRuntime(cmd, cmd.Root().ErrWriter)
			if err != nil {
				return err
			}

			start, err := time.Parse(time.RFC3339, cmd.String("start"))
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			end := mo.None[time.Time]()
			if raw := cmd.String("end"); raw != "" {
				parsed, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				end = mo.Some(parsed)
			}
			until, err := time.ParseInLocation("2006-01-02", cmd.String("until"), rt.location)
			if err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			rule := recurrence.Rule{
				Kind:         recurrence.ParseKind(cmd.String("type")),
				Interval:     int(cmd.Int("interval")),
				EndDate:      until,
				SkipWeekends: cmd.Bool("skip-weekends"),
			}
			occurrences, err := recurrence.NewExpander(rt.location).Expand(rule, start, end)
			if err != nil {
				return err
			}
			return printOccurrences(cmd.Root().Writer, occurrences)
		},
	}
}

func printOccurrences(w io.Writer, occurrences []recurrence.Occurrence) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTART\tEND\tNOTE")
	for _, occ := range occurrences {
		note := ""
		if occ.MovedFromSunday {
			note = "moved from Sunday"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			occ.Start.Format("2006-01-02 Mon"),
			occ.Start.Format("15:04"),
			occ.End.Format("15:04"),
			note)
	}
	fmt.Fprintf(tw, "%d occurrence(s)\n", len(occurrences))
	return tw.Flush()
}
