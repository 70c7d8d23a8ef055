package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LazyMaterialization(t *testing.T) {
	s := NewStore(nil)

	v, err := s.Get("somedev", "temp")
	require.NoError(t, err)
	assert.Nil(t, v, "brand-new cell returns the nil placeholder")
	assert.False(t, s.Complete("somedev", "temp"))

	c1 := s.Cell("somedev", "temp")
	c2 := s.Cell("somedev", "temp")
	assert.Same(t, c1, c2, "same pair must resolve to one handle")
}

func TestStore_SetMarksComplete(t *testing.T) {
	var changes []Change
	s := NewStore(func(ch Change) { changes = append(changes, ch) })

	assert.True(t, s.Set("somedev", "temp", 18))
	assert.True(t, s.Complete("somedev", "temp"))

	v, err := s.Get("somedev", "temp")
	require.NoError(t, err)
	assert.Equal(t, float64(18), v, "integers are normalized to float64")

	require.Len(t, changes, 1)
	assert.Equal(t, NewRef("somedev", "temp"), changes[0].Ref)
	assert.Nil(t, changes[0].Old)
	assert.Equal(t, float64(18), changes[0].New)
}

func TestStore_UnchangedWriteDoesNotNotify(t *testing.T) {
	var changes []Change
	s := NewStore(func(ch Change) { changes = append(changes, ch) })

	s.Set("dev", "sw", true)
	assert.False(t, s.Set("dev", "sw", true))
	assert.Len(t, changes, 1)

	s.Set("dev", "sw", false)
	assert.Len(t, changes, 2)
}

func TestStore_TypedCellsCoerceWrites(t *testing.T) {
	var changes []Change
	s := NewStore(func(ch Change) { changes = append(changes, ch) })
	s.SetMeta("d", "sw", MetaType, TypeSwitch)
	s.SetMeta("d", "temp", MetaType, "temperature")
	s.SetMeta("d", "label", MetaType, TypeText)
	changes = nil

	assert.True(t, s.Set("d", "sw", true))
	assert.False(t, s.Set("d", "sw", 1), "1 on a switch is the same value as true")
	v, err := s.Get("d", "sw")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	assert.True(t, s.Set("d", "sw", "0"))
	v, _ = s.Get("d", "sw")
	assert.Equal(t, false, v)

	s.Set("d", "temp", "21.5")
	v, _ = s.Get("d", "temp")
	assert.Equal(t, 21.5, v)

	s.Set("d", "label", 42)
	v, _ = s.Get("d", "label")
	assert.Equal(t, "42", v)

	s.Set("d", "free", 1)
	v, _ = s.Get("d", "free")
	assert.Equal(t, float64(1), v, "untyped cells keep the written kind")

	assert.Len(t, changes, 5)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ  string
		in   Value
		want Value
	}{
		{TypeSwitch, float64(1), true},
		{TypeAlarm, "false", false},
		{TypePushbutton, float64(0), false},
		{TypeRange, true, float64(1)},
		{TypeValue, "abc", "abc"},
		{TypeRGB, float64(255), "255"},
		{"", float64(1), float64(1)},
		{"bogus", true, true},
		{TypeSwitch, nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Coerce(tt.typ, tt.in), "%s %v", tt.typ, tt.in)
	}
}

func TestStore_PushbuttonAlwaysNotifies(t *testing.T) {
	var changes []Change
	s := NewStore(func(ch Change) { changes = append(changes, ch) })
	s.SetMeta("dev", "btn", MetaType, TypePushbutton)
	changes = nil

	s.Set("dev", "btn", true)
	s.Set("dev", "btn", true)
	assert.Len(t, changes, 2)
}

func TestStore_RequireComplete(t *testing.T) {
	s := NewStore(nil)

	t.Run("incomplete read inside region", func(t *testing.T) {
		release := s.RequireComplete()
		defer release()

		_, err := s.Get("dev", "missing")
		require.Error(t, err)
		assert.True(t, IsIncomplete(err))

		var ie *IncompleteError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, NewRef("dev", "missing"), ie.Ref)
	})

	t.Run("region released", func(t *testing.T) {
		assert.False(t, s.Strict())
		_, err := s.Get("dev", "missing")
		assert.NoError(t, err)
	})

	t.Run("nested regions", func(t *testing.T) {
		outer := s.RequireComplete()
		inner := s.RequireComplete()
		inner()
		inner() // second call is a no-op
		assert.True(t, s.Strict())
		outer()
		assert.False(t, s.Strict())
	})

	t.Run("released on panic", func(t *testing.T) {
		func() {
			defer func() { _ = recover() }()
			release := s.RequireComplete()
			defer release()
			panic("boom")
		}()
		assert.False(t, s.Strict())
	})
}

func TestStore_PathFormsResolveIdentically(t *testing.T) {
	s := NewStore(nil)

	_, err := s.SetPath("somedev/temp", 21.5)
	require.NoError(t, err)
	v, err := s.Get("somedev", "temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)

	s.SetMeta("somedev", "temp", MetaUnits, "deg C")
	mv, err := s.GetPath("somedev/temp#units")
	require.NoError(t, err)
	assert.Equal(t, "deg C", mv)

	_, err = s.SetPath("somedev/temp#error", "r")
	require.NoError(t, err)
	got, ok := s.GetMeta("somedev", "temp", MetaError)
	require.True(t, ok)
	assert.Equal(t, "r", got)
}

func TestStore_MetaChangeNotifies(t *testing.T) {
	var changes []Change
	s := NewStore(func(ch Change) { changes = append(changes, ch) })

	s.SetMeta("dev", "temp", MetaError, "r")
	s.SetMeta("dev", "temp", MetaError, "r")
	require.Len(t, changes, 1)
	assert.Equal(t, "dev/temp#error", changes[0].Ref.String())

	s.SetMeta("dev", "temp", MetaError, nil)
	require.Len(t, changes, 2)
	_, ok := s.GetMeta("dev", "temp", MetaError)
	assert.False(t, ok, "nil clears the field")
}

func TestStore_DeviceCells(t *testing.T) {
	s := NewStore(nil)
	s.Set("b", "x", 1)
	s.Set("a", "y", 2)
	s.Set("a", "z", 3)

	assert.Equal(t, []string{"a", "b"}, s.Devices())
	cells := s.DeviceCells("a")
	require.Len(t, cells, 2)
	assert.Equal(t, "y", cells[0].Ref().Cell)
	assert.Equal(t, "z", cells[1].Ref().Cell)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(nil)
	s.Set("dev", "v", 1)
	s.Reset("dev", "v")
	assert.False(t, s.Complete("dev", "v"))
}
