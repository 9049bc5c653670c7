package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"resourcehub/internal/cli"
	"resourcehub/internal/server/api"
	"resourcehub/internal/server/config"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/storage"
)

func main() {
	cmd, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, cli.Usage)
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd.Kind {
	case cli.CmdDoctor:
		err = doctor(ctx, cfg)
	case cli.CmdConvert:
		err = convertFile(ctx, cfg, cmd)
	case cli.CmdToken:
		err = token(cfg, cmd)
	case cli.CmdSweep:
		err = sweep(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newConverter(cfg *config.Config, staging *storage.Staging) *convert.Converter {
	return convert.NewConverter(
		staging,
		&convert.Pandoc{Path: cfg.PandocPath},
		&convert.Wkhtmltopdf{Path: cfg.WkhtmltopdfPath},
		&convert.PDF2Docx{Python: cfg.PythonPath, Script: cfg.PDF2DocxScript},
		cfg.ConvertTimeout,
	)
}

// doctor reports which conversion tools are installed.
func doctor(ctx context.Context, cfg *config.Config) error {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	missing := 0
	for _, s := range newConverter(cfg, storage.NewStaging(cfg.StagingPath)).Probe(probeCtx) {
		if s.Available() {
			fmt.Printf("✓ %-12s %s\n", s.Tool, s.Detail)
			continue
		}
		missing++
		fmt.Printf("✗ %-12s %v\n", s.Tool, s.Err)
	}
	if missing > 0 {
		return fmt.Errorf("%d conversion tool(s) unavailable", missing)
	}
	return nil
}

func convertFile(ctx context.Context, cfg *config.Config, cmd *cli.Command) error {
	dir := cmd.StagingDir
	if dir == "" {
		dir = cfg.StagingPath
	}
	staging := storage.NewStaging(dir)
	if err := staging.EnsureDir(); err != nil {
		return err
	}

	title := strings.TrimSuffix(filepath.Base(cmd.Source), filepath.Ext(cmd.Source))
	start := time.Now()
	res, err := newConverter(cfg, staging).Convert(ctx, convert.Source{
		Path:  cmd.Source,
		Title: title,
		Kind:  cmd.Direction.From(),
	}, cmd.Direction)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Converted to %s (%d bytes) in %s\n", res.Path, res.Size, time.Since(start).Round(time.Millisecond))
	return nil
}

func token(cfg *config.Config, cmd *cli.Command) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	role := ""
	if cmd.Admin {
		role = "admin"
	}
	tok, err := api.IssueToken([]byte(cfg.JWTSecret), cmd.UserID, role, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// sweep runs a single staging cleanup pass.
func sweep(cfg *config.Config) error {
	staging := storage.NewStaging(cfg.StagingPath)
	sweeper := storage.NewStagingSweeper(staging, storage.NewStagedLedger(), cfg.StagingSweepInterval, cfg.StagingMaxAge)
	if !sweeper.Enabled() {
		return fmt.Errorf("STAGING_MAX_AGE_HOURS and STAGING_SWEEP_INTERVAL_HOURS must be positive to sweep")
	}

	removed := sweeper.Sweep()
	fmt.Printf("✓ Removed %d staged file(s) older than %s\n", removed, cfg.StagingMaxAge)
	return nil
}
