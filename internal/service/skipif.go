package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ParseSkipIf compiles a skipif expression into a SkipPredicate. A
// malformed expression is reported immediately as an error rather than
// deferred to evaluation time, so the component transitions straight to
// ERRORED instead of failing silently mid-run.
func ParseSkipIf(expr string) (SkipPredicate, error) {
	fields := strings.Fields(expr)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed skipif expression %q: want \"onpath <cmd>\" or \"exists <path>\"", expr)
	}

	switch fields[0] {
	case "onpath":
		cmd := fields[1]
		return func(ctx context.Context) (bool, error) {
			_, err := exec.LookPath(cmd)
			return err == nil, nil
		}, nil
	case "exists":
		path := fields[1]
		return func(ctx context.Context) (bool, error) {
			_, err := os.Stat(path)
			return err == nil, nil
		}, nil
	default:
		return nil, fmt.Errorf("malformed skipif expression %q: unknown predicate %q", expr, fields[0])
	}
}
