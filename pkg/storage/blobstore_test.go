package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBlobStoreSaveStreamRoundTrip(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	key, err := store.SaveStream("reports/weekly.csv", bytes.NewReader([]byte("a,b,c\n1,2,3\n")))
	require.NoError(t, err)
	require.Equal(t, "reports/weekly.csv", key)

	file, err := store.Open(key)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, "a,b,c\n1,2,3\n", string(data))

	info, err := store.Stat(key)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), info.SizeBytes)
}

func TestLocalBlobStoreListReturnsRelativeKeys(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("one.txt", []byte("1"))
	require.NoError(t, err)
	_, err = store.SaveStream("nested/two.txt", bytes.NewReader([]byte("2")))
	require.NoError(t, err)

	keys, err := store.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"one.txt", "nested/two.txt"}, keys)
}
