package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"catalogbrowser/internal/catalog"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load both catalog files once and report what was found",
		Long: `check reads and normalizes the dashboards and queries files exactly as the
service would, prints one line per catalog and exits non-zero when a file
cannot be parsed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.check(cmd.Context())
		},
	}
}

var errCheckFailed = errors.New("catalog check failed")

func (a *app) check(ctx context.Context) error {
	store, _, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	failed := false
	for _, kind := range catalog.Kinds {
		loc, _ := store.Location(kind)
		if err := store.Reload(ctx, kind); err != nil {
			failed = true
			fmt.Fprintf(a.out, "%-10s ERROR   %s: %v\n", kind, loc.Path, err)
			continue
		}
		status := "ok"
		if !store.Present(ctx, kind) {
			status = "missing"
		}
		fmt.Fprintf(a.out, "%-10s %-7s %s (%d records)\n", kind, status, loc.Path, store.Count(kind))
	}
	if failed {
		return errCheckFailed
	}
	return nil
}
