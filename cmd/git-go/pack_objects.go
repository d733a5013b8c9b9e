package main

import (
	"fmt"
	"io"

	git "github.com/goabstract/git"
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/goabstract/git/internal/errutil"
	"github.com/goabstract/git/packbuild"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func newPackObjectsCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack-objects WANT...",
		Short: "Create a packed archive of objects reachable from the given refs or object ids",
		Args:  cobra.MinimumNArgs(1),
	}

	quiet := cmd.Flags().BoolP("quiet", "q", false, "Disable progress reporting.")
	haves := cmd.Flags().StringArray("have", nil, "A ref or object id to exclude (and everything reachable from it).")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return packObjectsCmd(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, args, *haves, *quiet)
	}
	return cmd
}

// objectSource adapts git.Repository to packbuild.ObjectSource, which
// asks for the narrower "Object(id)" method name.
type objectSource struct {
	r *git.Repository
}

func (s objectSource) Object(id ginternals.Oid) (*object.Object, error) {
	return s.r.GetObject(id)
}

func packObjectsCmd(out, errOut io.Writer, cfg *globalFlags, wantArgs, haveArgs []string, quiet bool) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	wants, err := resolveOids(r, wantArgs)
	if err != nil {
		return err
	}
	haves, err := resolveOids(r, haveArgs)
	if err != nil {
		return err
	}

	entries, err := packbuild.Closure(objectSource{r: r}, wants, haves)
	if err != nil {
		return xerrors.Errorf("could not compute object closure: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(entries),
			progressbar.OptionSetWriter(errOut),
			progressbar.OptionSetDescription(color.CyanString("Enumerating objects")),
			progressbar.OptionClearOnFinish(),
		)
	}

	opts := packbuild.Options{Monitor: cliMonitor{bar: bar}}
	if err := packbuild.Write(out, entries, opts); err != nil {
		return xerrors.Errorf("could not write pack: %w", err)
	}

	if !quiet {
		fmt.Fprintln(errOut, color.GreenString("done: %d objects", len(entries)))
	}
	return nil
}

// cliMonitor adapts a progressbar.ProgressBar (nil-safe) into a
// packbuild.Monitor for terminal progress reporting. The core pack
// writer never depends on progressbar itself — only on this small
// interface (§1's exclusion of progress/log rendering from the core).
type cliMonitor struct {
	bar *progressbar.ProgressBar
}

func (m cliMonitor) OnObject(done, total int) {
	if m.bar == nil {
		return
	}
	_ = m.bar.Set(done)
}

// resolveOids resolves each of names to an object id, accepting either
// a raw hex id or a ref name. A ref name is tried as
// ginternals.RefFullName(name) first, then as given; unlike cat-file,
// the local branch and local tag short forms are not tried.
func resolveOids(r *git.Repository, names []string) ([]ginternals.Oid, error) {
	out := make([]ginternals.Oid, 0, len(names))
	for _, name := range names {
		id, err := ginternals.NewOidFromStr(name)
		if err == nil {
			out = append(out, id)
			continue
		}

		ref, refErr := r.GetReference(ginternals.RefFullName(name))
		if refErr != nil {
			ref, refErr = r.GetReference(name)
		}
		if refErr != nil {
			return nil, xerrors.Errorf("not a valid object name or ref %q: %w", name, err)
		}
		out = append(out, ref.Target())
	}
	return out, nil
}
