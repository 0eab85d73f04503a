package memconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConvertsToStoreConfig(t *testing.T) {
	doc := Default()
	cfg, err := doc.ToStoreConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Banks, 1)
	require.Equal(t, uint64(0x80000000), uint64(cfg.Banks[0].Base))
	require.True(t, cfg.Banks[0].Code)
}

func TestLoadValidYAML(t *testing.T) {
	raw := []byte(`
banks:
  - name: rom
    base: 0
    size: 65536
    code: true
    access: rx
  - name: ram
    base: 65536
    size: 65536
    data: true
    access: rw
memory:
  data_reserve: 4096
`)
	doc, err := Load(raw)
	require.NoError(t, err)
	require.Len(t, doc.Banks, 2)
	require.Equal(t, "rom", doc.Banks[0].Name)

	cfg, err := doc.ToStoreConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Banks, 2)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	raw := []byte(`
banks:
  - name: rom
    size: 65536
    access: rx
`)
	_, err := Load(raw)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConfigError)
}

func TestLoadRejectsUnknownAccessValue(t *testing.T) {
	raw := []byte(`
banks:
  - name: rom
    base: 0
    size: 65536
    access: rwxw
`)
	_, err := Load(raw)
	require.Error(t, err)
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	raw := []byte(`
banks:
  - name: rom
    base: 0
    size: 65536
    access: rx
surprise_field: true
`)
	_, err := Load(raw)
	require.Error(t, err)
}
