// Package main provides the entry point for the entrasync CLI tool.
// The CLI triggers and inspects user synchronizations through the API and
// runs maintenance tasks against the user store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/repositories"
	"github.com/janovincze/entrasync/internal/config"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "-v", "--version":
		fmt.Fprintf(out, "entrasync version %s\n", version)
	case "help", "-h", "--help":
		printUsage(out)
	case "sync":
		return cmdSync(rest, out)
	case "status":
		return cmdStatus(rest, out)
	case "cancel":
		return cmdCancel(rest, out)
	case "jobs":
		return cmdJobs(rest, out)
	case "migrate-issuers":
		return cmdMigrateIssuers(out)
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `entrasync CLI - Entra ID user synchronization

Usage:
  entrasync <command> [options]

Commands:
  version           Show version information
  sync              Start a user synchronization
  status            Show the latest synchronization for a flag combination
  cancel            Cancel the running synchronization
  jobs              List known synchronizations
  migrate-issuers   Rewrite stored Entra ID issuers to the v2.0 form
  help              Show this help message

Sync options:
  --disable   Disable local accounts disabled in Entra ID
  --remove    Delete local accounts missing from Entra ID
  --api-url   API base URL (default ENTRASYNC_API_BASE_URL)

The bearer token is read from ENTRASYNC_TOKEN.`)
}

type syncFlags struct {
	disable bool
	remove  bool
	apiURL  string
}

func parseSyncFlags(name string, args []string) (*syncFlags, error) {
	f := &syncFlags{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.BoolVar(&f.disable, "disable", false, "disable local accounts disabled in Entra ID")
	fs.BoolVar(&f.remove, "remove", false, "delete local accounts missing from Entra ID")
	fs.StringVar(&f.apiURL, "api-url", os.Getenv("ENTRASYNC_API_BASE_URL"), "API base URL")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.apiURL == "" {
		f.apiURL = "http://localhost:8080"
	}
	return f, nil
}

func (f *syncFlags) client() *apiClient {
	return newAPIClient(f.apiURL, os.Getenv("ENTRASYNC_TOKEN"))
}

func cmdSync(args []string, out io.Writer) error {
	f, err := parseSyncFlags("sync", args)
	if err != nil {
		return err
	}
	resp, err := f.client().startSync(context.Background(), f.disable, f.remove)
	if err != nil {
		return err
	}
	printJob(out, resp)
	return nil
}

func cmdStatus(args []string, out io.Writer) error {
	f, err := parseSyncFlags("status", args)
	if err != nil {
		return err
	}
	resp, err := f.client().syncStatus(context.Background(), f.disable, f.remove)
	if err != nil {
		return err
	}
	printJob(out, resp)
	return nil
}

func cmdCancel(args []string, out io.Writer) error {
	f, err := parseSyncFlags("cancel", args)
	if err != nil {
		return err
	}
	resp, err := f.client().cancelSync(context.Background(), f.disable, f.remove)
	if err != nil {
		return err
	}
	printJob(out, resp)
	return nil
}

func cmdJobs(args []string, out io.Writer) error {
	f, err := parseSyncFlags("jobs", args)
	if err != nil {
		return err
	}
	list, err := f.client().listJobs(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d job(s)\n", list.TotalCount)
	for _, job := range list.Jobs {
		fmt.Fprintf(out, "  %-24s %-10s %s\n", job.Key, job.State, job.QueuedAt.Format(time.RFC3339))
	}
	return nil
}

func printJob(out io.Writer, resp *models.SyncJobResponse) {
	fmt.Fprintf(out, "Status:   %s\n", resp.Status)
	fmt.Fprintf(out, "Job:      %s\n", resp.Job.Key)
	fmt.Fprintf(out, "State:    %s\n", resp.Job.State)
	if resp.Job.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", resp.Job.Error)
	}
	r := resp.Job.Result
	fmt.Fprintf(out, "Result:   %d disabled, %d deleted, %d untouched\n", r.Disabled, r.Deleted, r.Untouched)
}

func cmdMigrateIssuers(out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer pool.Close()

	repo := repositories.NewUserRepository(pool)

	fixed, err := repo.FixIssuerVersions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %d account(s)\n", fixed)
	return nil
}
