// Package dump drives pg_dump to extract a schema or the whole database
// into a single snapshot file on local disk.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zarrinsoft/backup/internal/config"
)

// ErrDumpTimeout is returned when pg_dump exceeds the hard deadline.
var ErrDumpTimeout = errors.New("database dump timed out")

// System-internal schemas skipped on full-system dumps.
var systemSchemas = []string{"information_schema", "pg_catalog", "pg_toast"}

// Dumper extracts a database snapshot. Schema selects one schema; an empty
// schema means everything except the system-internal schemas.
type Dumper interface {
	Dump(ctx context.Context, schema, outputPath string) error
	Version(ctx context.Context) string
}

// Extractor runs pg_dump with custom format, maximum internal compression
// and no ownership/privilege statements.
type Extractor struct {
	cfg     config.PostgresConfig
	timeout time.Duration
}

func NewExtractor(cfg config.PostgresConfig, timeout time.Duration) *Extractor {
	return &Extractor{cfg: cfg, timeout: timeout}
}

// args builds the pg_dump invocation. An empty schema dumps everything
// except the system-internal schemas.
func (e *Extractor) args(schema, outputPath string) []string {
	args := []string{
		"--host=" + e.cfg.Host,
		fmt.Sprintf("--port=%d", e.cfg.Port),
		"--username=" + e.cfg.User,
		"--dbname=" + e.cfg.Database,
		"--format=custom",
		"--compress=9",
		"--no-owner",
		"--no-privileges",
		"--file=" + outputPath,
	}
	if schema != "" {
		args = append(args, "--schema="+schema)
	} else {
		for _, sys := range systemSchemas {
			args = append(args, "--exclude-schema="+sys)
		}
	}
	return args
}

func (e *Extractor) Dump(ctx context.Context, schema, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log.Debug().Str("schema", schema).Str("output", outputPath).Msg("starting pg_dump")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pg_dump", e.args(schema, outputPath)...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+e.cfg.Password)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrDumpTimeout, e.timeout)
	}
	if err != nil {
		// The tool's diagnostic stream is the only useful signal here,
		// surface it verbatim.
		return fmt.Errorf("pg_dump failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Version returns the pg_dump version string for the metadata snapshot.
func (e *Extractor) Version(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "pg_dump", "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
