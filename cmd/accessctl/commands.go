package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
	"github.com/noah-isme/room-access-api/internal/service"
	"github.com/noah-isme/room-access-api/pkg/config"
	"github.com/noah-isme/room-access-api/pkg/database"
	"github.com/noah-isme/room-access-api/pkg/export"
	"github.com/noah-isme/room-access-api/pkg/logger"
	"github.com/noah-isme/room-access-api/pkg/storage"
)

// env bundles what every subcommand needs.
type env struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func (e *env) close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: logr}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			applied, err := database.Migrate(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire approved requests whose access code window has lapsed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			codes := repository.NewAccessCodeRepository(e.db)
			access := service.NewAccessService(
				repository.NewAccessRequestRepository(e.db),
				repository.NewApprovalRepository(e.db),
				repository.NewRoomRepository(e.db),
				codes,
				nil,
				repository.NewUserRepository(e.db),
				service.NewValidator(),
				e.logger,
			)
			expired := service.NewExpirySweeper(access, e.cfg.Access.ExpirySweepInterval, e.logger).Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d request(s)\n", expired)
			return nil
		},
	}
}

type exportOptions struct {
	format string
	roomID string
	status string
	from   string
	to     string
	outDir string
	actor  string
	prune  time.Duration
}

func exportRecordsCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export-records",
		Short: "Render access records to a CSV or PDF file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := opts.query()
			if err != nil {
				return err
			}
			format, err := service.ParseExportFormat(opts.format)
			if err != nil {
				return err
			}
			dir, err := storage.NewExportDir(opts.outDir)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			path, rows, err := runExport(cmd.Context(), e, dir, query, format, opts.actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d record(s) to %s\n", rows, path)

			if opts.prune > 0 {
				removed, err := dir.Prune(opts.prune, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d old export(s)\n", len(removed))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.format, "format", "csv", "Output format (csv, pdf)")
	flags.StringVar(&opts.roomID, "room", "", "Only records for this room id")
	flags.StringVar(&opts.status, "status", "", "GRANTED or DENIED")
	flags.StringVar(&opts.from, "from", "", "Start of the visit time range (RFC3339)")
	flags.StringVar(&opts.to, "to", "", "End of the visit time range (RFC3339)")
	flags.StringVar(&opts.outDir, "out-dir", "./exports", "Directory receiving the export file")
	flags.StringVar(&opts.actor, "actor", "", "Admin user id recorded in the audit log")
	flags.DurationVar(&opts.prune, "prune-older-than", 0, "Also delete exports older than this age")
	return cmd
}

func (o exportOptions) query() (dto.AccessRecordQuery, error) {
	query := dto.AccessRecordQuery{RoomID: o.roomID, Status: models.AccessRecordStatus(o.status)}
	if o.from != "" {
		from, err := time.Parse(time.RFC3339, o.from)
		if err != nil {
			return query, fmt.Errorf("invalid --from: %w", err)
		}
		query.StartTime = &from
	}
	if o.to != "" {
		to, err := time.Parse(time.RFC3339, o.to)
		if err != nil {
			return query, fmt.Errorf("invalid --to: %w", err)
		}
		query.EndTime = &to
	}
	return query, nil
}

func runExport(ctx context.Context, e *env, dir *storage.ExportDir, query dto.AccessRecordQuery, format service.ExportFormat, actorID string) (string, int, error) {
	records := repository.NewAccessRecordRepository(e.db)
	csv, pdf := export.NewCSVExporter(), export.NewPDFExporter()

	// Audit rows need a real user id, so anonymous runs are not audited.
	svc := service.NewExportService(records, nil, e.logger, csv, pdf)
	if actorID != "" {
		svc = service.NewExportService(records, repository.NewUserRepository(e.db), e.logger, csv, pdf)
	}

	file, err := svc.ExportRecords(ctx, query, format, &models.JWTClaims{UserID: actorID, Role: models.RoleAdmin})
	if err != nil {
		return "", 0, err
	}
	path, err := dir.Save(file.Filename, file.Content)
	if err != nil {
		return "", 0, err
	}
	return path, file.Rows, nil
}
