package hash

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfDeterministic(t *testing.T) {
	h1 := Of([]byte("the quick brown fox"))
	h2 := Of([]byte("the quick brown fox"))
	assert.Equal(t, h1, h2)

	h3 := Of([]byte("the quick brown fo"))
	assert.NotEqual(t, h1, h3)
}

func TestRoundTripString(t *testing.T) {
	h := Of([]byte("round trip me"))
	s := h.String()
	require.Len(t, s, StringLen)

	got, ok := MaybeParse(s)
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, s, got.String())
}

func TestParsePanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { Parse("not a valid hash string at all!!") })

	_, ok := MaybeParse("too short")
	assert.False(t, ok)

	_, ok = MaybeParse("")
	assert.False(t, ok)
}

func TestNullIsEmpty(t *testing.T) {
	assert.True(t, Null.IsEmpty())
	assert.True(t, Hash{}.IsEmpty())
	assert.False(t, Of([]byte("x")).IsEmpty())
}

func TestLessAndCompareTotalOrder(t *testing.T) {
	a := Hash{0: 1}
	b := Hash{0: 2}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestSliceSort(t *testing.T) {
	s := Slice{Of([]byte("c")), Of([]byte("a")), Of([]byte("b"))}
	sort.Sort(s)
	assert.True(t, s[0].Less(s[1]))
	assert.True(t, s[1].Less(s[2]))
}

func BenchmarkOf(b *testing.B) {
	data := make([]byte, 4096)
	for i := 0; i < b.N; i++ {
		_ = Of(data)
	}
}
