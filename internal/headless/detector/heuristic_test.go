package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicShouldRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "empty body", status: 200, body: "  \n", want: true},
		{name: "next.js shell", status: 200, body: `<div id="__next"></div>`, want: true},
		{name: "angular root", status: 200, body: `<app-root ng-version="17.0.0"></app-root>`, want: true},
		{name: "script heavy", status: 200, body: `<html><script>var a=1;</script><p>t</p></html>`, want: true},
		{name: "unterminated script", status: 200, body: `<p>x</p><script src="a.js"`, want: true},
		{name: "static page", status: 200, body: `<html><body><div class="promo"><h2>Sale</h2></div></body></html>`, want: false},
		{name: "not found", status: 404, body: "", want: false},
	}
	h := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, h.ShouldRender(tt.status, []byte(tt.body)))
		})
	}
}

func TestHeuristicLargePagesIgnoreScriptDensity(t *testing.T) {
	t.Parallel()

	body := "<script>" + strings.Repeat("x", 100) + "</script><p>content</p>"
	require.True(t, NewHeuristic(1000).ShouldRender(200, []byte(body)))
	require.False(t, NewHeuristic(10).ShouldRender(200, []byte(body)))
	require.Equal(t, DefaultBodyThreshold, NewHeuristic(-1).BodyLengthThreshold)
}
