package transport

import (
	"github.com/goabstract/git/backend/fsbackend"
	"github.com/goabstract/git/ginternals/object"
	"golang.org/x/xerrors"
)

// FSApplier implements Applier against a real fsbackend.Backend,
// routing every push command through the §4.G lock-file/CAS/reflog
// protocol (fsbackend.Backend.CompareAndSwap) instead of a bare
// overwrite. This is the production collaborator ApplyAtomic and
// ApplyBestEffort run against; receivepack_test.go's recordingApplier
// remains for exercising the atomic-rollback logic in isolation.
type FSApplier struct {
	Backend *fsbackend.Backend
	// Who identifies the actor reflog entries are attributed to. The
	// zero value falls back to fsbackend's own "unknown" signature.
	Who object.Signature
}

// ApplyRef applies one receive-pack command as a compare-and-swap
// reference update, per §4.G.
func (a *FSApplier) ApplyRef(cmd Command) error {
	status, err := a.Backend.CompareAndSwap(fsbackend.RefUpdate{
		Name:    cmd.Ref,
		OldOid:  cmd.OldID,
		NewOid:  cmd.NewID,
		Who:     a.Who,
		Message: pushReflogMessage(cmd),
	})
	if status != fsbackend.RefUpdateOK {
		return xerrors.Errorf("%s: %s: %w", cmd.Ref, status, err)
	}
	return nil
}

// pushReflogMessage mirrors the reflog messages canonical git's
// receive-pack writes for created/updated/deleted refs.
func pushReflogMessage(cmd Command) string {
	switch {
	case cmd.IsCreate():
		return "push: created"
	case cmd.IsDelete():
		return "push: deleted"
	default:
		return "push"
	}
}
