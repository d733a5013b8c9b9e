package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/internal/errutil"
	"github.com/spf13/cobra"
)

func newSymbolicRefCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbolic-ref NAME [REF]",
		Short: "Read or update a symbolic reference",
		Args:  cobra.RangeArgs(1, 2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) == 2 {
			target = args[1]
		}
		return symbolicRefCmd(cmd.OutOrStdout(), cfg, args[0], target)
	}
	return cmd
}

func symbolicRefCmd(out io.Writer, cfg *globalFlags, name, target string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if target != "" {
		return r.SetSymbolicReference(name, target)
	}

	ref, err := r.GetReference(name)
	if err != nil {
		return err
	}
	if ref.Type() != ginternals.SymbolicReference {
		return errors.New("ref " + name + " is not a symbolic ref")
	}
	fmt.Fprintln(out, ref.SymbolicTarget())
	return nil
}
