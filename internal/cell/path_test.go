package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    Ref
		wantErr bool
	}{
		{name: "cell", path: "somedev/temp", want: Ref{Device: "somedev", Cell: "temp"}},
		{name: "meta", path: "somedev/temp#error", want: Ref{Device: "somedev", Cell: "temp", Meta: "error"}},
		{name: "no slash", path: "somedev", wantErr: true},
		{name: "empty device", path: "/temp", wantErr: true},
		{name: "empty cell", path: "somedev/", wantErr: true},
		{name: "extra segment", path: "a/b/c", wantErr: true},
		{name: "empty meta", path: "a/b#", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				var pe *PathError
				assert.ErrorAs(t, err, &pe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.path, got.String())
		})
	}
}

func TestParsePath_NFC(t *testing.T) {
	composed, err := ParsePath("caf\u00e9/temp")
	require.NoError(t, err)
	decomposed, err := ParsePath("cafe\u0301/temp")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestRef_CellRef(t *testing.T) {
	ref := MustParsePath("dev/temp#max")
	assert.True(t, ref.IsMeta())
	assert.Equal(t, "dev/temp", ref.CellRef().String())
	assert.False(t, ref.CellRef().IsMeta())
	assert.True(t, Ref{}.IsZero())
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("temp_1"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("a/b"))
	assert.False(t, ValidName("a#b"))
	assert.False(t, ValidName("a+"))
}
