package git

import (
	"errors"

	"github.com/goabstract/git/backend"
	"github.com/goabstract/git/backend/fsbackend"
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/config"
	"github.com/goabstract/git/ginternals/object"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// List of errors returned by the Repository struct
var (
	ErrRepositoryNotExist           = errors.New("repository does not exist")
	ErrRepositoryUnsupportedVersion = errors.New("repository nor supported")
	ErrRepositoryExists             = errors.New("repository already exists")
	ErrTagNotFound                  = errors.New("tag not found")
	ErrTagExists                    = errors.New("tag already exists")
)

// Repository represent a git repository
// A Git repository is the .git/ folder inside a project.
// This repository tracks all changes made to files in your project,
// building a history over time.
// https://blog.axosoft.com/learning-git-repository/
type Repository struct {
	// Config is the resolved configuration this repository was
	// opened/initialized with.
	Config *config.Config

	dotGit   backend.Backend
	workTree afero.Fs
}

// InitOptions contains all the optional data used to initialized a
// repository
type InitOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// InitialBranchName is used as the name of the branch HEAD points
	// to. Defaults to ginternals.Master.
	InitialBranchName string
	// GitBackend represents the underlying backend to use to init the
	// repository and interact with the odb
	// By default the filesystem will be used
	GitBackend backend.Backend
	// WorkingTreeBackend represents the underlying backend to use to
	// interact with the working tree.
	// By default the filesystem will be used
	// Setting this is useless if IsBare is set to true
	WorkingTreeBackend afero.Fs
}

// InitRepository initialize a new git repository by creating the .git
// directory in the given path, which is where almost everything that
// Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepository(repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(repoPath, InitOptions{})
}

// InitRepositoryWithOptions initialize a new git repository by creating
// the .git directory in the given path, which is where almost everything
// that Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepositoryWithOptions(repoPath string, opts InitOptions) (*Repository, error) {
	gitDirPath := ""
	if opts.IsBare {
		gitDirPath = repoPath
	}
	p, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		WorkingDirectory: repoPath,
		GitDirPath:       gitDirPath,
		IsBare:           opts.IsBare,
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not create param: %w", err)
	}
	return InitRepositoryWithParams(p, opts)
}

// InitRepositoryWithParams initializes a new git repository using an
// already resolved Config.
func InitRepositoryWithParams(p *config.Config, opts InitOptions) (*Repository, error) {
	r := &Repository{Config: p}

	r.dotGit = opts.GitBackend
	if r.dotGit == nil {
		r.dotGit = fsbackend.New(p.GitDirPath)
	}

	if !opts.IsBare {
		r.workTree = opts.WorkingTreeBackend
		if r.workTree == nil {
			r.workTree = afero.NewOsFs()
		}
	}

	if err := r.dotGit.Init(); err != nil {
		return nil, err
	}

	branch := opts.InitialBranchName
	if branch == "" {
		branch = ginternals.Master
	}
	ref := ginternals.NewSymbolicReference(ginternals.Head, ginternals.LocalBranchFullName(branch))
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrRepositoryExists
		}
		return nil, err
	}

	return r, nil
}

// OpenOptions contains all the optional data used to open a
// repository
type OpenOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// GitBackend represents the underlying backend to use to init the
	// repository and interact with the odb
	// By default the filesystem will be used
	GitBackend backend.Backend
	// WorkingTreeBackend represents the underlying backend to use to
	// interact with the working tree.
	// By default the filesystem will be used
	// Setting this is useless if IsBare is set to true
	WorkingTreeBackend afero.Fs
}

// OpenRepository loads an existing git repository by reading its
// config file, and returns a Repository instance
func OpenRepository(repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(repoPath, OpenOptions{})
}

// OpenRepositoryWithOptions loads an existing git repository by reading
// its config file, and returns a Repository instance
func OpenRepositoryWithOptions(repoPath string, opts OpenOptions) (*Repository, error) {
	gitDirPath := ""
	if opts.IsBare {
		gitDirPath = repoPath
	}
	p, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		WorkingDirectory: repoPath,
		GitDirPath:       gitDirPath,
		IsBare:           opts.IsBare,
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not create param: %w", err)
	}
	return OpenRepositoryWithParams(p, opts)
}

// OpenRepositoryWithParams loads an existing git repository from an
// already resolved Config.
func OpenRepositoryWithParams(p *config.Config, opts OpenOptions) (*Repository, error) {
	r := &Repository{Config: p}

	r.dotGit = opts.GitBackend
	if r.dotGit == nil {
		r.dotGit = fsbackend.New(p.GitDirPath)
	}

	if !opts.IsBare {
		r.workTree = opts.WorkingTreeBackend
		if r.workTree == nil {
			r.workTree = afero.NewOsFs()
		}
	}

	// since we can't check if the directory exists on disk to
	// validate if the repo exists, we're instead going to see if HEAD
	// exists (since it should always be there)
	if _, err := r.dotGit.Reference(ginternals.Head); err != nil {
		return nil, ErrRepositoryNotExist
	}

	return r, nil
}

// Close releases any resource (open packfiles, file handles, ...)
// held by the repository.
func (r *Repository) Close() error {
	return r.dotGit.Close()
}

// IsBare returns whether the repository has a working tree or not
func (r *Repository) IsBare() bool {
	return r.workTree == nil
}

// GetObject returns the object matching the given Oid, whether it's
// stored loose or inside a packfile.
func (r *Repository) GetObject(oid ginternals.Oid) (*object.Object, error) {
	return r.dotGit.Object(oid)
}

// WriteObject writes an object on disk and returns its Oid
func (r *Repository) WriteObject(o *object.Object) (ginternals.Oid, error) {
	return r.dotGit.WriteObject(o)
}

// NewBlob creates, persists, and returns a new Blob object
func (r *Repository) NewBlob(data []byte) (*object.Blob, error) {
	o := object.New(object.TypeBlob, data)
	if _, err := r.dotGit.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not persist blob: %w", err)
	}
	return object.NewBlob(o), nil
}

// GetCommit returns the commit matching the given Oid
func (r *Repository) GetCommit(oid ginternals.Oid) (*object.Commit, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, xerrors.Errorf("could not get commit %s: %w", oid.String(), err)
	}
	return o.AsCommit()
}

// GetTree returns the tree matching the given Oid
func (r *Repository) GetTree(oid ginternals.Oid) (*object.Tree, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, xerrors.Errorf("could not get tree %s: %w", oid.String(), err)
	}
	return o.AsTree()
}

// GetReference returns the reference matching the given name, fully
// resolved if it's symbolic (ex. HEAD -> refs/heads/master -> <oid>)
func (r *Repository) GetReference(name string) (*ginternals.Reference, error) {
	return r.dotGit.Reference(name)
}

// WriteReference writes the given reference on disk, overwriting it
// if it already exists.
func (r *Repository) WriteReference(ref *ginternals.Reference) error {
	return r.dotGit.WriteReference(ref)
}

// SetSymbolicReference points name at target, creating or overwriting
// name as a symbolic reference (ex. HEAD -> refs/heads/main).
func (r *Repository) SetSymbolicReference(name, target string) error {
	return r.dotGit.WriteReference(ginternals.NewSymbolicReference(name, target))
}

// validateParents makes sure every parent id provided points to an
// already persisted commit object.
func (r *Repository) validateParents(parentIDs []ginternals.Oid) error {
	for _, pid := range parentIDs {
		o, err := r.GetObject(pid)
		if err != nil {
			return xerrors.Errorf("could not load parent %s: %w", pid.String(), err)
		}
		if o.Type() != object.TypeCommit {
			return xerrors.Errorf("invalid type for parent %s: %w", pid.String(), object.ErrObjectInvalid)
		}
	}
	return nil
}

// NewCommit creates a new commit on top of the given tree, persists
// it, and moves refName to point to it.
func (r *Repository) NewCommit(refName string, tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	if opts == nil {
		opts = &object.CommitOptions{}
	}
	if err := r.validateParents(opts.ParentsID); err != nil {
		return nil, err
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.dotGit.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}

	ref := ginternals.NewReference(refName, c.ID())
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, xerrors.Errorf("could not update ref %s: %w", refName, err)
	}

	return c, nil
}

// NewDetachedCommit creates a new commit on top of the given tree and
// persists it, without moving any reference.
func (r *Repository) NewDetachedCommit(tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	if opts == nil {
		opts = &object.CommitOptions{}
	}
	if err := r.validateParents(opts.ParentsID); err != nil {
		return nil, err
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.dotGit.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}

	return c, nil
}

// GetTag returns the reference for the tag matching the given name
func (r *Repository) GetTag(name string) (*ginternals.Reference, error) {
	ref, err := r.dotGit.Reference(ginternals.LocalTagFullName(name))
	if err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return nil, xerrors.Errorf("tag %s: %w", name, ErrTagNotFound)
		}
		return nil, err
	}
	return ref, nil
}

// NewTag creates a new annotated tag, persisting both the tag object
// and the refs/tags/<name> reference pointing to it.
func (r *Repository) NewTag(p *object.TagParams) (*object.Tag, error) {
	tag, err := object.NewTag(p)
	if err != nil {
		return nil, err
	}

	if _, err := r.dotGit.WriteObject(tag.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist tag: %w", err)
	}

	ref := ginternals.NewReference(ginternals.LocalTagFullName(p.Name), tag.ID())
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, xerrors.Errorf("tag %s: %w", p.Name, ErrTagExists)
		}
		return nil, err
	}

	return tag, nil
}

// NewLightweightTag creates a refs/tags/<name> reference pointing
// directly at an existing, persisted object (no tag object created).
func (r *Repository) NewLightweightTag(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	o, err := r.GetObject(target)
	if err != nil {
		return nil, xerrors.Errorf("could not load tag target %s: %w", target.String(), err)
	}
	if o.Size() == 0 {
		return nil, xerrors.Errorf("tag target %s is not a persisted object: %w", target.String(), object.ErrObjectInvalid)
	}

	ref := ginternals.NewReference(ginternals.LocalTagFullName(name), target)
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, xerrors.Errorf("tag %s: %w", name, ErrTagExists)
		}
		return nil, err
	}

	return ref, nil
}
