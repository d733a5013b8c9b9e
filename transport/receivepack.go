package transport

import (
	"fmt"
	"strings"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/revwalk"
	"golang.org/x/xerrors"
)

// Command is one "<old-id> <new-id> <ref-name>" push command line.
type Command struct {
	OldID ginternals.Oid
	NewID ginternals.Oid
	Ref   string
}

// IsCreate reports whether this command creates a new ref.
func (c Command) IsCreate() bool { return c.OldID == ginternals.NullOid }

// IsDelete reports whether this command deletes an existing ref.
func (c Command) IsDelete() bool { return c.NewID == ginternals.NullOid }

// ParseCommand parses a single receive-pack command line (without its
// trailing capability list, which the caller strips off the first
// line before calling this).
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Command{}, xerrors.Errorf("malformed receive-pack command %q", line)
	}
	old, err := ginternals.NewOidFromStr(fields[0])
	if err != nil {
		return Command{}, xerrors.Errorf("invalid old id in %q: %w", line, err)
	}
	newID, err := ginternals.NewOidFromStr(fields[1])
	if err != nil {
		return Command{}, xerrors.Errorf("invalid new id in %q: %w", line, err)
	}
	return Command{OldID: old, NewID: newID, Ref: fields[2]}, nil
}

// Status is the per-ref outcome reported by report-status.
type Status struct {
	Ref    string
	OK     bool
	Reason string // populated when !OK
}

// String renders the status line the way report-status emits it:
// "ok <ref>" or "ng <ref> <reason>".
func (s Status) String() string {
	if s.OK {
		return "ok " + s.Ref
	}
	return fmt.Sprintf("ng %s %s", s.Ref, s.Reason)
}

// RefLookup resolves a ref's current id, ginternals.ErrObjectNotFound
// (or any error satisfying errors.Is against it) meaning the ref
// doesn't exist. A backend's Reference(name).Target() can be adapted
// to it with a thin wrapper.
type RefLookup interface {
	ResolveRef(name string) (ginternals.Oid, error)
}

// Applier performs the actual ref update for one accepted command,
// after connectivity checks have passed.
type Applier interface {
	ApplyRef(cmd Command) error
}

// ConnectivitySource is the object-existence and reachability surface
// the connectivity check needs: it must be able to answer "does this
// object exist" and, for reachability, provide a revwalk.CommitGetter
// rooted in the objects the push just added plus the receiver's
// existing refs.
type ConnectivitySource interface {
	revwalk.CommitGetter
	HasObject(id ginternals.Oid) (bool, error)
}

// CheckConnectivity validates every command per §4.J: a non-zero
// old-id must already exist, and the new-id (when non-zero) must
// itself be reachable — i.e. loadable as a commit — so a push can't
// silently leave a ref pointing at an object the receiver doesn't
// actually have after indexing the incoming pack.
func CheckConnectivity(src ConnectivitySource, existing RefLookup, cmds []Command) error {
	for _, cmd := range cmds {
		if !cmd.IsCreate() {
			ok, err := src.HasObject(cmd.OldID)
			if err != nil {
				return xerrors.Errorf("checking old id for %s: %w", cmd.Ref, err)
			}
			if !ok {
				return xerrors.Errorf("old id %s for ref %s does not exist", cmd.OldID, cmd.Ref)
			}
			if existing != nil {
				current, err := existing.ResolveRef(cmd.Ref)
				if err != nil {
					return xerrors.Errorf("resolving current value of %s: %w", cmd.Ref, err)
				}
				if current != cmd.OldID {
					return xerrors.Errorf("ref %s changed since the client last saw it (expected %s, got %s)", cmd.Ref, cmd.OldID, current)
				}
			}
		}
		if !cmd.IsDelete() {
			if _, err := src.GetCommit(cmd.NewID); err != nil {
				return xerrors.Errorf("new id %s for ref %s is not reachable: %w", cmd.NewID, cmd.Ref, err)
			}
		}
	}
	return nil
}

// ApplyAtomic applies every command through applier, honoring the
// "atomic" capability's all-or-nothing contract (§4.J): if any command
// fails, no ref already applied in this call is left changed — the
// caller is expected to have CheckConnectivity already confirmed the
// whole batch, so failures here are only lock contention on the ref
// store, at which point recently-applied commands must be reverted via
// a compensating ApplyRef to their old id.
func ApplyAtomic(applier Applier, cmds []Command) []Status {
	statuses := make([]Status, len(cmds))
	var applied []Command

	var failure error
	for i, cmd := range cmds {
		if failure == nil {
			if err := applier.ApplyRef(cmd); err != nil {
				failure = err
			} else {
				applied = append(applied, cmd)
				statuses[i] = Status{Ref: cmd.Ref, OK: true}
				continue
			}
		}
		statuses[i] = Status{Ref: cmd.Ref, OK: false, Reason: "atomic transaction failed"}
	}

	if failure != nil {
		for i := range statuses {
			statuses[i] = Status{Ref: cmds[i].Ref, OK: false, Reason: failure.Error()}
		}
		for _, cmd := range applied {
			_ = applier.ApplyRef(Command{OldID: cmd.NewID, NewID: cmd.OldID, Ref: cmd.Ref})
		}
	}

	return statuses
}

// ApplyBestEffort applies every command independently (non-atomic push):
// a failure on one ref doesn't prevent the others from being applied.
func ApplyBestEffort(applier Applier, cmds []Command) []Status {
	statuses := make([]Status, len(cmds))
	for i, cmd := range cmds {
		if err := applier.ApplyRef(cmd); err != nil {
			statuses[i] = Status{Ref: cmd.Ref, OK: false, Reason: err.Error()}
			continue
		}
		statuses[i] = Status{Ref: cmd.Ref, OK: true}
	}
	return statuses
}
