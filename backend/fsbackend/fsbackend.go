// Package fsbackend contains an implementation of the backend.Backend
// interface for the filesystem
package fsbackend

import (
	"sync"

	"github.com/goabstract/git/backend"
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/packfile"
	"github.com/goabstract/git/internal/cache"
	"github.com/goabstract/git/internal/gitpath"
	"github.com/goabstract/git/internal/syncutil"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// objectCacheSize bounds the in-memory LRU of inflated object payloads
// (component D's decompression cache, §4.D).
const objectCacheSize = 1024

// namedMutexSize bounds the number of stripes used to serialize
// concurrent access to a given object/ref id (§5).
const namedMutexSize = 64

// Backend is a Backend implementation that uses the filesystem to store data
type Backend struct {
	root string
	fs   afero.Fs

	cache    *cache.LRU
	objectMu *syncutil.NamedMutex

	loadOnce sync.Once
	loadErr  error

	looseObjects sync.Map
	packfiles    map[ginternals.Oid]*packfile.Pack

	refs sync.Map
}

// New returns a new Backend object rooted at the given .git directory.
func New(dotGitPath string) *Backend {
	return &Backend{
		root:      dotGitPath,
		fs:        afero.NewOsFs(),
		cache:     cache.NewLRU(objectCacheSize),
		objectMu:  syncutil.NewNamedMutex(namedMutexSize),
		packfiles: map[ginternals.Oid]*packfile.Pack{},
	}
}

// Path returns the path to the .git directory backing this Backend
func (b *Backend) Path() string {
	return b.root
}

// Close frees the resources held by the backend (open packfiles).
func (b *Backend) Close() error {
	for _, pack := range b.packfiles {
		if err := pack.Close(); err != nil {
			return xerrors.Errorf("could not close packfile: %w", err)
		}
	}
	return nil
}

// ensureLoaded lazily indexes the packfiles, loose objects, and refs
// on disk. It only runs once per Backend instance: callers that write
// new loose objects/packs/refs update the in-memory indexes directly
// instead of re-scanning the filesystem.
func (b *Backend) ensureLoaded() error {
	b.loadOnce.Do(func() {
		if err := b.loadPacks(); err != nil {
			b.loadErr = xerrors.Errorf("could not load packfiles: %w", err)
			return
		}
		if err := b.loadLooseObject(); err != nil {
			b.loadErr = xerrors.Errorf("could not load loose objects: %w", err)
			return
		}
		if err := b.loadRefs(); err != nil {
			b.loadErr = xerrors.Errorf("could not load refs: %w", err)
			return
		}
	})
	return b.loadErr
}

// Init initializes a repository.
// This method cannot be called concurrently with other methods.
// Calling this method on an existing repository is safe. It will not
// overwrite things that are already there, but will add what's missing.
func (b *Backend) Init() error {
	dirs := []string{
		gitpath.ObjectsPath,
		gitpath.RefsTagsPath,
		gitpath.RefsHeadsPath,
		gitpath.ObjectsInfoPath,
		gitpath.ObjectsPackPath,
	}
	for _, d := range dirs {
		fullPath := b.systemPath(d)
		if err := b.fs.MkdirAll(fullPath, 0o750); err != nil {
			return xerrors.Errorf("could not create directory %s: %w", d, err)
		}
	}

	// Create the files with the default content
	// (taken from a repo created on github)
	files := []struct {
		path    string
		content []byte
	}{
		{
			path:    gitpath.DescriptionPath,
			content: []byte("Unnamed repository; edit this file 'description' to name the repository.\n"),
		},
	}
	for _, f := range files {
		fullPath := b.systemPath(f.path)
		if err := afero.WriteFile(b.fs, fullPath, f.content, 0o644); err != nil {
			return xerrors.Errorf("could not create file %s: %w", f.path, err)
		}
	}

	if err := b.setDefaultCfg(); err != nil {
		return xerrors.Errorf("could not set the default config: %w", err)
	}

	return nil
}
