package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautycare/edgecache/internal/conf"
)

func TestClassify_DefaultPatterns(t *testing.T) {
	t.Parallel()

	c, err := New(conf.DefaultDynamicPatterns)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want Kind
	}{
		{
			name: "report PDF",
			path: "/data/reports/user_42_summary.pdf",
			want: Dynamic,
		},
		{
			name: "report HTML",
			path: "/data/reports/user_42_summary.html",
			want: Dynamic,
		},
		{
			name: "generated SVG card",
			path: "/output/cards/user_42_card_1.svg",
			want: Dynamic,
		},
		{
			name: "generated PNG card",
			path: "/output/cards/user_42_card_1.png",
			want: Dynamic,
		},
		{
			name: "JSON under assets",
			path: "/assets/catalog.json",
			want: Dynamic,
		},
		{
			name: "YAML under assets",
			path: "/assets/palette.yaml",
			want: Dynamic,
		},
		{
			name: "JSON under data",
			path: "/data/reports/user_42_latest.json",
			want: Dynamic,
		},
		{
			name: "root navigation",
			path: "/",
			want: Static,
		},
		{
			name: "index document",
			path: "/index.html",
			want: Static,
		},
		{
			name: "stylesheet",
			path: "/ui/theme/tokens.css",
			want: Static,
		},
		{
			name: "brand SVG outside cards",
			path: "/ui/brand/logo.svg",
			want: Static,
		},
		{
			name: "PDF outside report directories",
			path: "/docs/brochure.pdf",
			want: Static,
		},
		{
			name: "report path without matching extension",
			path: "/data/reports/user_42_notes.txt",
			want: Static,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.Classify(tt.path), "path %q", tt.path)
		})
	}
}

func TestClassify_EmptyPatternSet(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, Static, c.Classify("/data/reports/user_1_latest.json"))
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New([]string{`([unclosed`})
	assert.Error(t, err)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "static", Static.String())
	assert.Equal(t, "dynamic", Dynamic.String())
}
