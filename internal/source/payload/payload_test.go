package payload

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsStringsAndNumbers(t *testing.T) {
	t.Parallel()

	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1,000","b":12.5,"c":null}`), &v))
	require.Equal(t, int64(1000), *v.A.Int())
	require.InDelta(t, 12.5, *v.B.Float(), 1e-9)
	require.Nil(t, v.C.Float())
	require.Nil(t, v.D.Int())

	require.Error(t, json.Unmarshal([]byte(`{"a":"lots"}`), &v))
}

func TestFirstAndResolve(t *testing.T) {
	t.Parallel()

	require.Equal(t, "x", First([]string{"", "  ", "x", "y"}))
	require.Empty(t, First(nil))

	base, err := url.Parse("https://shop.example.com/deals/")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com/deals/a.png", Resolve(base, "a.png"))
	require.Equal(t, "https://cdn.example.com/b.png", Resolve(base, "https://cdn.example.com/b.png"))
	require.Empty(t, Resolve(base, " "))
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	t.Parallel()

	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"ab-1","b":90071992547409931}`), &v))
	require.Equal(t, ID("ab-1"), v.A)
	require.Equal(t, ID("90071992547409931"), v.B)
	require.Empty(t, v.C)
	require.Error(t, json.Unmarshal([]byte(`{"a":{}}`), &v))
}
