// Command portalctl runs maintenance jobs against the portal database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"mcportal/internal/app"
	"mcportal/internal/audit"
	"mcportal/internal/config"
	"mcportal/internal/models"
)

// portal is opened by the root Before hook and closed in After.
var portal *app.App

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "portalctl",
		Usage: "maintenance commands for the community portal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
				Sources: cli.EnvVars("PORTAL_CONFIG_PATH"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			portal, err = app.New(cfg, app.NewLogger(cfg, os.Stderr))
			return ctx, err
		},
		After: func(context.Context, *cli.Command) error {
			if portal != nil {
				return portal.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "create or upgrade the schema and sync servers.yaml",
				Action: runMigrate,
			},
			{
				Name:  "create-admin",
				Usage: "create the first admin account if none exists",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Value: "admin", Usage: "account name"},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("PORTAL_ADMIN_PASSWORD")},
				},
				Action: runCreateAdmin,
			},
			{
				Name:   "whitelist-check",
				Usage:  "notify Discord about newly whitelisted players",
				Action: runWhitelistCheck,
			},
			{
				Name:  "export-applications",
				Usage: "write applications to an Excel workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "pending, shortlisted, accepted or rejected"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file"},
				},
				Action: runExport,
			},
			{
				Name:   "backup",
				Usage:  "snapshot the database and prune old backups",
				Action: runBackup,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, _ *cli.Command) error {
	if err := portal.SyncServers(ctx); err != nil {
		return fmt.Errorf("sync servers: %w", err)
	}
	portal.Logger.Info().Str("path", portal.DB.Path()).Msg("schema up to date")
	return nil
}

func runCreateAdmin(ctx context.Context, cmd *cli.Command) error {
	created, err := portal.Users.EnsureAdmin(ctx, cmd.String("username"), cmd.String("password"))
	if err != nil {
		return err
	}
	if !created {
		portal.Logger.Warn().Msg("an admin account already exists, nothing created")
		return nil
	}
	portal.Logger.Info().Str("username", cmd.String("username")).Msg("admin account created")
	return nil
}

func runWhitelistCheck(ctx context.Context, _ *cli.Command) error {
	n, err := portal.Whitelist.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d player(s) notified\n", n)
	return nil
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	var status models.ApplicationStatus
	if raw := cmd.String("status"); raw != "" && raw != "all" {
		st, err := models.ParseApplicationStatus(raw)
		if err != nil {
			return err
		}
		status = st
	}
	out := cmd.String("out")
	if out == "" {
		out = audit.Filename(time.Now())
	}
	if err := portal.Exporter.ExportApplicationsToFile(ctx, status, out); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runBackup(ctx context.Context, _ *cli.Command) error {
	path, err := portal.Backup.PerformBackup(ctx)
	if err != nil {
		return err
	}
	removed := portal.Backup.CleanupOldBackups()
	portal.Logger.Info().Str("file", path).Int("removed", removed).Msg("backup finished")
	return nil
}
