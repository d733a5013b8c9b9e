package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goabstract/git/ginternals/packfile"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func newIndexPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-pack PACKFILE",
		Short: "Build the .idx companion file for a packfile that doesn't have one yet",
		Args:  cobra.ExactArgs(1),
	}

	fromStdin := cmd.Flags().Bool("stdin", false, "Read the packfile from stdin instead of PACKFILE, and write the index to PACKFILE.idx.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return indexPackCmd(cmd.OutOrStdout(), args[0], *fromStdin)
	}
	return cmd
}

func indexPackCmd(out io.Writer, packPath string, fromStdin bool) (err error) {
	var r io.Reader
	if fromStdin {
		r = os.Stdin
	} else {
		f, ferr := os.Open(packPath)
		if ferr != nil {
			return xerrors.Errorf("could not open %s: %w", packPath, ferr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		r = f
	}

	entries, packSum, err := packfile.BuildIndex(r)
	if err != nil {
		return xerrors.Errorf("could not index %s: %w", packPath, err)
	}

	idxPath := strings.TrimSuffix(packPath, packfile.ExtPackfile) + packfile.ExtIndex
	idxFile, err := os.Create(idxPath)
	if err != nil {
		return xerrors.Errorf("could not create %s: %w", idxPath, err)
	}
	defer func() {
		if cerr := idxFile.Close(); err == nil {
			err = cerr
		}
	}()

	if err := packfile.WriteIndex(idxFile, entries, packSum); err != nil {
		return xerrors.Errorf("could not write %s: %w", idxPath, err)
	}

	fmt.Fprintln(out, packSum.String())
	return nil
}
