package service

import (
	"errors"
	"testing"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	data, err := decodeDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	for _, bad := range []string{"", "aGVsbG8=", "data:image/png,aGVsbG8=", "data:image/png;base64,***", "data:image/png;base64,"} {
		_, err := decodeDataURI(bad)
		require.ErrorIs(t, err, model.ErrRemoteProcessing, bad)
	}
}

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		probed   string
		data     []byte
		want     string
	}{
		{"declared wins", "image/JPEG", model.PNG, nil, model.JPEG},
		{"declared with params", "image/png; charset=binary", "", nil, model.PNG},
		{"octet-stream uses probe", "application/octet-stream", model.GIF, nil, model.GIF},
		{"sniffed", "", "", []byte("%PDF-1.4 something"), "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resolveContentType(tt.declared, tt.probed, tt.data))
		})
	}
}

func TestRemoveID(t *testing.T) {
	order := []string{"a", "b", "c"}
	require.Equal(t, []string{"a", "c"}, removeID(order, "b"))
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, []string{"a", "b", "c"}, removeID(order, "x"))
}

func TestErrMessage(t *testing.T) {
	require.Equal(t, model.FallbackErrMsg, errMessage(errors.New("  ")))
	require.Equal(t, "boom", errMessage(errors.New("boom")))
}

func TestKeys(t *testing.T) {
	require.Equal(t, "src/42.jpg", sourceKey("42", model.JPEG))
	require.Equal(t, "res/42.png", resultKey("42"))
}

func TestUniqueName(t *testing.T) {
	taken := make(map[string]bool)

	got := []string{
		uniqueName("clearcut_a.png", taken),
		uniqueName("clearcut_a.png", taken),
		uniqueName("clearcut_a_2.png", taken),
		uniqueName("clearcut_a.png", taken),
		uniqueName("clearcut_b.png", taken),
		uniqueName("clearcut_noext", taken),
		uniqueName("clearcut_noext", taken),
	}

	require.Equal(t, []string{
		"clearcut_a.png",
		"clearcut_a_2.png",
		"clearcut_a_2_2.png",
		"clearcut_a_3.png",
		"clearcut_b.png",
		"clearcut_noext",
		"clearcut_noext_2",
	}, got)
}
