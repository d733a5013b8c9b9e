package packfile_test

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/packfile"
	"github.com/goabstract/git/internal/testhelper"
	"github.com/goabstract/git/internal/testhelper/confutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndex(t *testing.T) {
	t.Parallel()

	t.Run("valid indexfile should pass", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		indexFileName := "pack-0163931160835b1de2f120e1aa7e52206debeb14.idx"
		cfg := confutil.NewCommonConfig(t, repoPath)
		indexFilePath := ginternals.PackfilePath(cfg, indexFileName)

		f, err := os.Open(indexFilePath)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, f.Close())
		})

		index, err := packfile.NewIndex(bufio.NewReader(f))
		require.NoError(t, err)
		assert.NotNil(t, index)
	})

	t.Run("a packfile should fail", func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		indexFileName := "pack-0163931160835b1de2f120e1aa7e52206debeb14.pack"
		cfg := confutil.NewCommonConfig(t, repoPath)
		indexFilePath := ginternals.PackfilePath(cfg, indexFileName)

		f, err := os.Open(indexFilePath)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, f.Close())
		})

		index, err := packfile.NewIndex(bufio.NewReader(f))
		require.Error(t, err)
		assert.Nil(t, index)
		assert.True(t, errors.Is(err, packfile.ErrInvalidMagic))
	})
}

func TestNewIndexRejectsCorruptFooter(t *testing.T) {
	t.Parallel()

	repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
	t.Cleanup(cleanup)

	indexFileName := "pack-0163931160835b1de2f120e1aa7e52206debeb14.idx"
	cfg := confutil.NewCommonConfig(t, repoPath)
	indexFilePath := ginternals.PackfilePath(cfg, indexFileName)

	raw, err := os.ReadFile(indexFilePath)
	require.NoError(t, err)

	// Flip a byte in the middle of the file (well inside layer2/3/4,
	// away from the header) so the index checksum in the footer no
	// longer matches the content it covers.
	corrupt := make([]byte, len(raw))
	copy(corrupt, raw)
	mid := len(corrupt) / 2
	corrupt[mid] ^= 0xff

	index, err := packfile.NewIndex(bufio.NewReader(bytes.NewReader(corrupt)))
	require.NoError(t, err) // header alone is still valid

	_, err = index.GetObjectOffset(ginternals.NullOid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, packfile.ErrChecksumMismatch), "unexpected error: %s", err)
}

func TestGetObjectOffset(t *testing.T) {
	t.Parallel()

	t.Run(string(testhelper.RepoSmall), func(t *testing.T) {
		t.Parallel()

		repoPath, cleanup := testhelper.UnTar(t, testhelper.RepoSmall)
		t.Cleanup(cleanup)

		indexFileName := "pack-0163931160835b1de2f120e1aa7e52206debeb14.idx"
		cfg := confutil.NewCommonConfig(t, repoPath)
		indexFilePath := ginternals.PackfilePath(cfg, indexFileName)

		f, err := os.Open(indexFilePath)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, f.Close())
		})

		index, err := packfile.NewIndex(bufio.NewReader(f))
		require.NoError(t, err)
		assert.NotNil(t, index)

		t.Run("should work with valid oid", func(t *testing.T) {
			t.Parallel()

			oid, err := ginternals.NewOidFromStr("1dcdadc2a420225783794fbffd51e2e137a69646")
			require.NoError(t, err)
			offset, err := index.GetObjectOffset(oid)
			require.NoError(t, err)
			assert.Equal(t, uint64(23081), offset)
		})

		t.Run("should fail with invalid oid", func(t *testing.T) {
			t.Parallel()

			oid, err := ginternals.NewOidFromStr("1acdadc2a420225783794fbffd51e2e137a69646")
			require.NoError(t, err)
			_, err = index.GetObjectOffset(oid)
			require.Error(t, err)
			require.True(t, errors.Is(err, ginternals.ErrObjectNotFound), "invalid error returned: %s", err.Error())
		})
	})
}
