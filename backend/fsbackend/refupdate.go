package fsbackend

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/goabstract/git/internal/errutil"
	"github.com/goabstract/git/internal/gitpath"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// refLockMaxAttempts and refLockInitialBackoff bound the lock-file
// acquisition retry loop of §4.G's update protocol: up to 5 attempts,
// the wait doubling each time (10ms, 20ms, 40ms, 80ms).
const (
	refLockMaxAttempts    = 5
	refLockInitialBackoff = 10 * time.Millisecond
)

// RefUpdateStatus is the outcome of one compare-and-swap reference
// update, per §4.G's batch-reporting contract and §7's error taxonomy.
type RefUpdateStatus int

const (
	// RefUpdateOK means the reference now holds NewOid (or was
	// deleted, if NewOid is ginternals.NullOid).
	RefUpdateOK RefUpdateStatus = iota
	// RefUpdateLockFailure means the <ref>.lock file could not be
	// created within refLockMaxAttempts (§7 LOCK_CONFLICT).
	RefUpdateLockFailure
	// RefUpdateRejectedStale means the reference's current value did
	// not match OldOid (§4.G "Fail with LOCK_STALE on mismatch").
	RefUpdateRejectedStale
	// RefUpdateRejectedOther means the update was rejected for a
	// reason other than staleness (e.g. an invalid reference name).
	RefUpdateRejectedOther
	// RefUpdateIOFailure means a filesystem error (other than lock
	// contention) prevented the update from completing.
	RefUpdateIOFailure
)

// String renders the status the way a caller would report it back to
// a push client (§4.J report-status uses "ok"/"ng <reason>").
func (s RefUpdateStatus) String() string {
	switch s {
	case RefUpdateOK:
		return "ok"
	case RefUpdateLockFailure:
		return "lock failure"
	case RefUpdateRejectedStale:
		return "stale info"
	case RefUpdateRejectedOther:
		return "rejected"
	case RefUpdateIOFailure:
		return "io failure"
	default:
		return "unknown"
	}
}

// RefUpdate describes one compare-and-swap reference write plus the
// reflog entry that should be appended once it succeeds.
type RefUpdate struct {
	// Name is the full reference name being updated (e.g.
	// "refs/heads/master").
	Name string
	// OldOid is the value the caller expects the reference to
	// currently hold. ginternals.NullOid means the reference is
	// expected not to exist yet.
	OldOid ginternals.Oid
	// NewOid is the value to set the reference to. ginternals.NullOid
	// means the reference should be deleted.
	NewOid ginternals.Oid
	// Who identifies the actor the reflog entry is attributed to.
	Who object.Signature
	// Message is the reflog message (e.g. "push", "commit: <summary>").
	Message string
}

// RefUpdateResult pairs a RefUpdate with the status it resolved to,
// for reporting a batch back to a caller (§4.G "each update's status
// ... is reported").
type RefUpdateResult struct {
	Name   string
	Status RefUpdateStatus
	Err    error
}

// CompareAndSwap performs one atomic reference update following the
// §4.G lock protocol:
//  1. acquire "<ref>.lock" exclusively, retrying with bounded backoff
//  2. re-read the current value and compare it against update.OldOid
//  3. write the new value, fsync, rename over the target
//  4. append a reflog entry
//
// On any failure the lock file is unlinked and the reference is left
// untouched.
func (b *Backend) CompareAndSwap(update RefUpdate) (RefUpdateStatus, error) {
	if !ginternals.IsRefNameValid(update.Name) {
		return RefUpdateRejectedOther, ginternals.ErrRefNameInvalid
	}

	p := b.systemPath(update.Name)
	lockPath := p + ".lock"

	lock, err := b.acquireRefLock(lockPath)
	if err != nil {
		return RefUpdateLockFailure, err
	}

	status, err := b.casLocked(lock, lockPath, p, update)
	if err != nil {
		_ = lock.Close()
		_ = b.fs.Remove(lockPath)
		return status, err
	}
	return status, nil
}

// casLocked performs steps 2-4 of the protocol once the lock file is
// held. It does not clean up the lock file on error; the caller does.
func (b *Backend) casLocked(lock afero.File, lockPath, p string, update RefUpdate) (RefUpdateStatus, error) {
	current := ginternals.NullOid
	curRef, err := b.Reference(update.Name)
	switch {
	case err == nil:
		if curRef.Type() == ginternals.OidReference {
			current = curRef.Target()
		}
	case xerrors.Is(err, ginternals.ErrRefNotFound):
		// current stays NullOid: the ref doesn't exist yet
	default:
		return RefUpdateIOFailure, xerrors.Errorf("could not read current value of %s: %w", update.Name, err)
	}

	if current != update.OldOid {
		return RefUpdateRejectedStale, xerrors.Errorf("ref %s: expected %s, found %s: %w",
			update.Name, update.OldOid, current, ginternals.ErrRefLockStale)
	}

	if update.NewOid == ginternals.NullOid {
		if err := b.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return RefUpdateIOFailure, xerrors.Errorf("could not delete reference %s: %w", update.Name, err)
		}
		if err := lock.Close(); err != nil {
			return RefUpdateIOFailure, xerrors.Errorf("could not close lock for %s: %w", update.Name, err)
		}
		if err := b.fs.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return RefUpdateIOFailure, xerrors.Errorf("could not remove lock for %s: %w", update.Name, err)
		}
		b.refs.Delete(update.Name)
		if err := b.appendReflog(update, current); err != nil {
			return RefUpdateIOFailure, err
		}
		return RefUpdateOK, nil
	}

	if _, err := lock.WriteString(fmt.Sprintf("%s\n", update.NewOid)); err != nil {
		return RefUpdateIOFailure, xerrors.Errorf("could not write lock for %s: %w", update.Name, err)
	}
	if err := lock.Sync(); err != nil {
		return RefUpdateIOFailure, xerrors.Errorf("could not fsync lock for %s: %w", update.Name, err)
	}
	if err := lock.Close(); err != nil {
		return RefUpdateIOFailure, xerrors.Errorf("could not close lock for %s: %w", update.Name, err)
	}
	if err := b.fs.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return RefUpdateIOFailure, xerrors.Errorf("could not create directory for %s: %w", update.Name, err)
	}
	if err := b.fs.Rename(lockPath, p); err != nil {
		return RefUpdateIOFailure, xerrors.Errorf("could not rename lock into place for %s: %w", update.Name, err)
	}
	b.refs.Store(update.Name, struct{}{})

	if err := b.appendReflog(update, current); err != nil {
		return RefUpdateIOFailure, err
	}
	return RefUpdateOK, nil
}

// acquireRefLock creates lockPath exclusively, retrying up to
// refLockMaxAttempts times with doubling backoff when it's already
// held by a concurrent writer (§4.G step 1, §7 LOCK_CONFLICT).
func (b *Backend) acquireRefLock(lockPath string) (afero.File, error) {
	if err := b.fs.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, xerrors.Errorf("could not create directory for lock %s: %w", lockPath, err)
	}

	delay := refLockInitialBackoff
	var lastErr error
	for attempt := 0; attempt < refLockMaxAttempts; attempt++ {
		f, err := b.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, xerrors.Errorf("could not create lock file %s: %w", lockPath, err)
		}
		lastErr = err
		if attempt < refLockMaxAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return nil, xerrors.Errorf("%s: %w (%v)", lockPath, ginternals.ErrRefLockConflict, lastErr)
}

// appendReflog appends one line to logs/<ref name>, creating the file
// (and its parent directories) if needed, per §4.G step 3 and the
// data model's "reflog entries append-only" invariant. The line
// format matches canonical git:
// "<old> <new> <who> <when>\t<message>\n".
func (b *Backend) appendReflog(update RefUpdate, oldOid ginternals.Oid) (err error) {
	who := update.Who
	if who.IsZero() {
		who = object.NewSignature("unknown", "unknown@localhost")
	}
	line := fmt.Sprintf("%s %s %s\t%s\n", oldOid, update.NewOid, who.String(), update.Message)

	logPath := filepath.Join(b.root, gitpath.LogsPath, filepath.FromSlash(update.Name))
	if err := b.fs.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return xerrors.Errorf("could not create reflog directory for %s: %w", update.Name, err)
	}

	f, err := b.fs.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return xerrors.Errorf("could not open reflog for %s: %w", update.Name, err)
	}
	defer errutil.Close(f, &err)

	if _, err := f.WriteString(line); err != nil {
		return xerrors.Errorf("could not append to reflog for %s: %w", update.Name, err)
	}
	return f.Sync()
}

// ReflogEntry is one parsed line of a reference's reflog.
type ReflogEntry struct {
	OldOid  ginternals.Oid
	NewOid  ginternals.Oid
	Who     string
	Message string
}

// Reflog reads and parses every entry of logs/<name>, oldest first.
// ginternals.ErrRefNotFound is returned if the reference has no
// reflog yet.
func (b *Backend) Reflog(name string) ([]ReflogEntry, error) {
	logPath := filepath.Join(b.root, gitpath.LogsPath, filepath.FromSlash(name))
	data, err := afero.ReadFile(b.fs, logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf(`reflog "%s": %w`, name, ginternals.ErrRefNotFound)
		}
		return nil, xerrors.Errorf("could not read reflog for %s: %w", name, err)
	}

	entries := make([]ReflogEntry, 0)
	for _, line := range splitLines(data) {
		if line == "" {
			continue
		}
		tabIdx := indexByte(line, '\t')
		meta, msg := line, ""
		if tabIdx >= 0 {
			meta, msg = line[:tabIdx], line[tabIdx+1:]
		}
		fields := fieldsN(meta, 3)
		if len(fields) < 3 {
			return nil, xerrors.Errorf("malformed reflog line %q for %s: %w", line, name, ginternals.ErrRefInvalid)
		}
		oldOid, err := ginternals.NewOidFromStr(fields[0])
		if err != nil {
			return nil, xerrors.Errorf("invalid old id in reflog for %s: %w", name, err)
		}
		newOid, err := ginternals.NewOidFromStr(fields[1])
		if err != nil {
			return nil, xerrors.Errorf("invalid new id in reflog for %s: %w", name, err)
		}
		entries = append(entries, ReflogEntry{
			OldOid:  oldOid,
			NewOid:  newOid,
			Who:     fields[2],
			Message: msg,
		})
	}
	return entries, nil
}

// ApplyRefUpdates runs CompareAndSwap for each update in order and
// reports every outcome (§4.G "Batch updates across multiple refs use
// the same protocol; if any ref in the batch fails, refs already
// applied are left in place"). This is the non-atomic entry point;
// all-or-nothing batching (the push "atomic" capability) is built on
// top of it by transport.ApplyAtomic.
func (b *Backend) ApplyRefUpdates(updates []RefUpdate) []RefUpdateResult {
	results := make([]RefUpdateResult, len(updates))
	for i, u := range updates {
		status, err := b.CompareAndSwap(u)
		results[i] = RefUpdateResult{Name: u.Name, Status: status, Err: err}
	}
	return results
}

// splitLines splits reflog content on '\n', dropping a trailing empty
// element produced by the file's final newline.
func splitLines(data []byte) []string {
	s := string(data)
	lines := make([]string, 0)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// indexByte returns the index of the first occurrence of c in s, or -1.
func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// fieldsN splits s on single spaces into at most n fields, the last
// one containing any remaining spaces (reflog identities contain
// spaces, e.g. "Name <email> ts tz").
func fieldsN(s string, n int) []string {
	fields := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s) && len(fields) < n-1; i++ {
		if s[i] == ' ' {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	fields = append(fields, s[start:])
	return fields
}
