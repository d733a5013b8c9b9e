// Package bundle implements the git bundle codec (§4.K): an ASCII
// prelude and ref/prerequisite list followed by a raw pack stream,
// used to ship a repository (or an incremental slice of one) as a
// single file without a live transport connection.
package bundle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goabstract/git/ginternals"
	"golang.org/x/xerrors"
)

// header is the ASCII signature line of a v2 bundle. v3 ("# v3 git
// bundle\n") adds an optional capability section this package doesn't
// yet parse; see DESIGN.md.
const header = "# v2 git bundle\n"

// ErrInvalidBundle is returned when the prelude, prerequisite, or ref
// section doesn't match the bundle grammar.
var ErrInvalidBundle = errors.New("invalid bundle")

// Prerequisite is a "-<id> [comment]" line: a commit the bundle
// assumes the receiver already has, so it isn't included in the pack.
type Prerequisite struct {
	ID      ginternals.Oid
	Comment string
}

// Ref is one "<id> <ref-name>" line: a reference the bundle carries,
// pointing at an id that either is a prerequisite or is included in
// the pack.
type Ref struct {
	ID   ginternals.Oid
	Name string
}

// Manifest is the parsed non-pack portion of a bundle.
type Manifest struct {
	Prerequisites []Prerequisite
	Refs          []Ref
}

// Write emits a complete bundle: the prelude, prerequisite lines, ref
// lines, a blank line, then the raw pack bytes from pack (copied
// as-is; packbuild.Write already produced a checksummed packfile).
func Write(w io.Writer, m Manifest, pack io.Reader) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	for _, p := range m.Prerequisites {
		line := "-" + p.ID.String()
		if p.Comment != "" {
			line += " " + p.Comment
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	for _, r := range m.Refs {
		if _, err := bw.WriteString(r.ID.String() + " " + r.Name + "\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	_, err := io.Copy(w, pack)
	return err
}

// ReadManifest parses the prelude, prerequisite, and ref sections from
// r, leaving r positioned at the start of the pack data (so the caller
// can hand the same reader to packfile.NewFromFile-style consumption,
// or to io.Copy it out to a .pack file).
func ReadManifest(r *bufio.Reader) (Manifest, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return Manifest{}, xerrors.Errorf("could not read bundle header: %w", err)
	}
	if line != header {
		return Manifest{}, xerrors.Errorf("unsupported bundle header %q: %w", line, ErrInvalidBundle)
	}

	var m Manifest
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return Manifest{}, xerrors.Errorf("could not read bundle manifest: %w", err)
		}
		if line == "\n" {
			break
		}
		line = strings.TrimSuffix(line, "\n")

		if strings.HasPrefix(line, "-") {
			id, rest, err := parseHexPrefixed(line[1:])
			if err != nil {
				return Manifest{}, xerrors.Errorf("invalid prerequisite line %q: %w", line, err)
			}
			m.Prerequisites = append(m.Prerequisites, Prerequisite{ID: id, Comment: strings.TrimSpace(rest)})
			continue
		}

		id, rest, err := parseHexPrefixed(line)
		if err != nil {
			return Manifest{}, xerrors.Errorf("invalid ref line %q: %w", line, err)
		}
		name := strings.TrimSpace(rest)
		if name == "" {
			return Manifest{}, xerrors.Errorf("ref line %q is missing a name: %w", line, ErrInvalidBundle)
		}
		m.Refs = append(m.Refs, Ref{ID: id, Name: name})
	}

	return m, nil
}

// parseHexPrefixed splits "<40-hex-id><rest>" into the id and
// whatever follows (including the separating space, if any).
func parseHexPrefixed(s string) (ginternals.Oid, string, error) {
	const hexLen = 40
	if len(s) < hexLen {
		return ginternals.NullOid, "", fmt.Errorf("line too short: %w", ErrInvalidBundle)
	}
	id, err := ginternals.NewOidFromStr(s[:hexLen])
	if err != nil {
		return ginternals.NullOid, "", xerrors.Errorf("%w", err)
	}
	return id, s[hexLen:], nil
}
