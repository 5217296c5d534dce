package mutation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsOrdering(t *testing.T) {
	p := NewParams("b", "1", "a", "2", "b", "3")

	assert.Equal(t, []string{"b", "a"}, p.Keys())
	assert.Equal(t, "b=1&b=3&a=2", p.Encode())

	updated := p.Set("b", "x")
	assert.Equal(t, "b=x&a=2", updated.Encode(), "existing key keeps its slot")
	assert.Equal(t, "b=1&b=3&a=2", p.Encode(), "original is unchanged")

	appended := p.Set("c", "4")
	assert.Equal(t, []string{"b", "a", "c"}, appended.Keys())
}

func TestParamsWithout(t *testing.T) {
	p := NewParams("a", "1", "b", "2", "c", "3")

	assert.Equal(t, "b=2", p.Without("a", "c", "missing").Encode())
	assert.Equal(t, 3, p.Len())
}

func TestParamsSetEach(t *testing.T) {
	p := NewParams("a", "1", "b", "2")

	got := p.SetEach([]string{"b", "c", "d"}, "Z")
	assert.Equal(t, "a=1&b=Z&c=Z&d=Z", got.Encode())
	assert.Equal(t, "a=1&b=2", p.Encode())

	assert.Equal(t, "q=Z&r=Z", Params{}.SetEach([]string{"q", "r"}, "Z").Encode())
}

func TestParamsMap(t *testing.T) {
	p := NewParams("x", "1", "y", "k", "x", "2")

	got := p.Map("x", func(v string) string { return v + "!" })
	assert.Equal(t, "x=1%21&x=2%21&y=k", got.Encode())
	assert.Equal(t, []string{"1", "2"}, p.Get("x"))
}

func TestParamsEncodeIsFormEncoding(t *testing.T) {
	p := NewParams("q", `"><svg/onload=alert(1)>`, "s", "a b~c")

	assert.Equal(t, "q=%22%3E%3Csvg%2Fonload%3Dalert%281%29%3E&s=a+b~c", p.Encode())
}

func TestParamsGetReturnsCopy(t *testing.T) {
	p := NewParams("a", "1")
	vals := p.Get("a")
	vals[0] = "mutated"

	assert.Equal(t, []string{"1"}, p.Get("a"))
	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("b"))
}

func TestParamsMarshalJSON(t *testing.T) {
	p := NewParams("b", "1", "a", "2", "b", "3")

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"b":["1","3"],"a":["2"]}`, string(data))

	empty, err := json.Marshal(Params{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		size  int
		want  [][]string
	}{
		{"even split", []string{"a", "b", "c", "d"}, 2, [][]string{{"a", "b"}, {"c", "d"}}},
		{"remainder", []string{"a", "b", "c", "d", "e"}, 2, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}},
		{"size larger than list", []string{"a", "b"}, 15, [][]string{{"a", "b"}}},
		{"empty list", nil, 3, nil},
		{"non-positive size", []string{"a"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunks(tt.words, tt.size))
		})
	}
}
