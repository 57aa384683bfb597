package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/opsboard/opsboard/internal/areas"
)

// IntegrityChecker runs the area hierarchy scan.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]areas.Violation, error)
}

// IntegrityOptions defines available flags for the integrity command.
type IntegrityOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegritySummary describes the JSON response for the integrity command.
type IntegritySummary struct {
	OK         bool              `json:"ok"`
	Violations []areas.Violation `json:"violations"`
}

// IntegrityCommand scans the area tree and prints the outcome. It exits 10
// when violations were found.
func IntegrityCommand(ctx context.Context, checker IntegrityChecker, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	violations, err := checker.CheckIntegrity(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "areas integrity: %v\n", err)
		return 1
	}
	if violations == nil {
		violations = []areas.Violation{}
	}
	if opts.JSONOutput {
		summary := IntegritySummary{OK: len(violations) == 0, Violations: violations}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "areas integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, violations)
	}
	if len(violations) > 0 {
		return 10
	}
	return 0
}

func renderIntegrityHuman(out io.Writer, violations []areas.Violation) {
	if len(violations) == 0 {
		_, _ = fmt.Fprintln(out, "Area tree is consistent.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d violation(s) detected:\n", len(violations))
	for _, v := range violations {
		_, _ = fmt.Fprintf(out, " - [%s] area %d %s: %s\n", v.Rule, v.AreaID, v.Path, v.Detail)
	}
}
