package main

import (
	"errors"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/internal/errutil"
	"github.com/spf13/cobra"
)

func newUpdateRefCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-ref REF NEWVALUE",
		Short: "Update the object name stored in a ref safely",
		Args:  cobra.ExactArgs(2),
	}

	del := cmd.Flags().BoolP("delete", "d", false, "Delete the given refname. Deleting is not supported: the command fails when this flag is set.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return updateRefCmd(cfg, args[0], args[1], *del)
	}
	return cmd
}

func updateRefCmd(cfg *globalFlags, refName, newValue string, del bool) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if del {
		return errors.New("update-ref -d: deleting references is not supported")
	}

	oid, err := ginternals.NewOidFromStr(newValue)
	if err != nil {
		return err
	}

	// Make sure the target actually points to something persisted
	// before moving the ref to it.
	if _, err := r.GetObject(oid); err != nil {
		return err
	}

	return r.WriteReference(ginternals.NewReference(refName, oid))
}
