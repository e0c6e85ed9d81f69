package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golang-blockchain/errs"
)

// withTmpWalletDir chdirs into a scratch directory for the duration of the
// test, since walletFile is a relative "./tmp/..." path.
func withTmpWalletDir(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tmp"), 0755))
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })
}

func TestCreateWalletsStartsEmptyWhenNoFileExists(t *testing.T) {
	withTmpWalletDir(t)

	ws, err := CreateWallets("test-node")
	require.NoError(t, err)
	assert.Empty(t, ws.GetAllAddresses())
}

func TestAddWalletSaveLoadRoundTrip(t *testing.T) {
	withTmpWalletDir(t)

	ws, err := CreateWallets("test-node")
	require.NoError(t, err)

	address := ws.AddWallet()
	require.NoError(t, ws.SaveFile("test-node"))

	reloaded, err := CreateWallets("test-node")
	require.NoError(t, err)

	w, err := reloaded.GetWallet(address)
	require.NoError(t, err)
	assert.Equal(t, address, string(w.Address()))
}

func TestGetWalletUnknownAddressReturnsNotFound(t *testing.T) {
	withTmpWalletDir(t)

	ws, err := CreateWallets("test-node")
	require.NoError(t, err)

	_, err = ws.GetWallet("unknown-address")
	assert.ErrorIs(t, err, errs.NotFound)
}
