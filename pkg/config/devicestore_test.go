package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudelblinken/firmware/pkg/storage"
)

func TestDeviceStoreDefaults(t *testing.T) {
	store := storage.NewSimulated(64, 4)
	d := OpenDeviceStore(store, "Riley-Kodi")

	require.Equal(t, "Riley-Kodi", d.Name())
	require.Equal(t, [3]byte{0xFF, 0xCC, 0x88}, d.StripColor())
	require.Empty(t, d.GuestConfig())
	_, err := d.MainProgram()
	require.ErrorIs(t, err, ErrNoMainProgram)
}

func TestDeviceStorePersistsAcrossReopen(t *testing.T) {
	store := storage.NewSimulated(64, 4)
	d := OpenDeviceStore(store, "fallback")

	require.NoError(t, d.SetName([]byte("Salem-Rio")))
	require.NoError(t, d.SetStripColor([]byte{1, 2, 3}))
	require.NoError(t, d.SetGuestConfig([]byte{0xAA}))
	hash := [32]byte{9, 9, 9}
	require.NoError(t, d.SetMainProgram(hash))

	d2 := OpenDeviceStore(store, "fallback")
	require.Equal(t, "Salem-Rio", d2.Name())
	require.Equal(t, [3]byte{1, 2, 3}, d2.StripColor())
	require.Equal(t, []byte{0xAA}, d2.GuestConfig())
	got, err := d2.MainProgram()
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestDeviceStoreNameValidation(t *testing.T) {
	d := OpenDeviceStore(storage.NewSimulated(64, 4), "fallback")

	require.ErrorIs(t, d.SetName([]byte("abc")), ErrNameLength)
	require.ErrorIs(t, d.SetName([]byte("this-is-far-too-long")), ErrNameLength)
	require.ErrorIs(t, d.SetName([]byte{0xFF, 0xFE, 0xFD, 0xFC}), ErrNameEncoding)
	require.ErrorIs(t, d.SetStripColor([]byte{1, 2}), ErrColorLength)

	// The rejected values did not disturb the stored name.
	require.Equal(t, "fallback", d.Name())
}
