package recognizer

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/ledgerscan/internal/layout"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewByName(t *testing.T) {
	r, err := New(BackendGlyph, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, BackendGlyph, r.Name())
	require.NoError(t, r.Close())

	_, err = New("bogus", DefaultConfig())
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.Decode.Mode = "sampling"
	_, err = New(BackendGlyph, cfg)
	require.Error(t, err)
}

func TestNamesListsModelFreeBackendFirst(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.Equal(t, BackendGlyph, names[0])
	assert.Contains(t, names, BackendCTC)
}

func TestTesseractAvailability(t *testing.T) {
	if tesseractAvailable {
		t.Skip("built with tesseract")
	}
	_, err := New(BackendTesseract, DefaultConfig())
	require.ErrorIs(t, err, ledger.ErrNoBackend)
}

func TestRecognizeBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	crops := []layout.Crop{{Image: testutil.RenderText("x", 2)}}
	_, err := glyphRecognizer().RecognizeBatch(ctx, crops)
	require.ErrorIs(t, err, context.Canceled)
}
