package main

import (
	"bytes"
	"os"
	"testing"

	git "github.com/goabstract/git"
	"github.com/goabstract/git/env"
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/goabstract/git/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackObjectsCmd(t *testing.T) {
	t.Parallel()

	repoPath, cleanup := testhelper.TempDir(t)
	t.Cleanup(cleanup)

	r, err := git.InitRepository(repoPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	blob, err := r.NewBlob([]byte("hello\n"))
	require.NoError(t, err)

	tb := r.NewTreeBuilder()
	require.NoError(t, tb.Insert("hello.txt", blob.ID(), object.ModeFile))
	tree, err := tb.Write()
	require.NoError(t, err)

	sig := object.NewSignature("tester", "tester@example.com")
	commit, err := r.NewCommit(ginternals.LocalBranchFullName(ginternals.Master), tree, sig, &object.CommitOptions{
		Message: "initial commit",
	})
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newRootCmd(cwd, env.NewFromOs())
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{
		"pack-objects",
		"-q",
		"-C", repoPath,
		commit.ID().String(),
	})

	require.NoError(t, cmd.Execute())

	out := outBuf.Bytes()
	require.GreaterOrEqual(t, len(out), 12)
	assert.Equal(t, "PACK", string(out[0:4]))
	// commit + tree + blob
	assert.Equal(t, []byte{0, 0, 0, 3}, out[8:12])
}
