package responder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogClassify(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{"namaste", "greetings"},
		{"NAMASTE ji", "greetings"},
		{"kaise ho aap", "how_are_you"},
		{"tumhara naam kya hai", "name"},
		{"meri madad karo", "help"},
		{"thoda motivation do", "motivation"},
		{"bahut shukriya", "thanks"},
		{"kitne baje hain", "time"},
		{"aaj mausam kaisa hai", "weather"},
		{"xyz qqq", "default"},
		// greetings is tested first, so a later match never wins
		{"hello what time is it", "greetings"},
		// "this" contains "hi", and the pattern is a plain substring test
		{"what is this weather", "greetings"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.Classify(tt.input))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.Equal(t, "greetings", catalog.Classify("hey, thank you for the weather"))
	}
}

func TestRespondPicksTemplateFromCategory(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	r := New(catalog)
	greetings := catalog.Templates("greetings")

	reply := r.Respond("namaste")
	assert.Equal(t, "greetings", reply.Category)
	assert.Contains(t, greetings, reply.Text)
}

func TestRespondIsUniform(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	r := New(catalog)
	templates := catalog.Templates("default")
	counts := make(map[string]int, len(templates))

	const trials = 12000
	for i := 0; i < trials; i++ {
		counts[r.Respond("zzz").Text]++
	}

	require.Len(t, counts, len(templates))
	expected := float64(trials) / float64(len(templates))
	for _, tmpl := range templates {
		got := float64(counts[tmpl])
		assert.InDelta(t, expected, got, expected*0.15, "template %q", tmpl)
	}
}

func TestRespondRendersTime(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 16, 15, 4, 5, 0, time.UTC))

	tests := []struct {
		index int
		want  string
	}{
		{0, "Abhi time hai 03:04 PM. Plan your day wisely!"},
		{1, "Samay hai 3:04:05 PM. Thoda break le lijiye agar thak gaye hain."},
	}

	for _, tt := range tests {
		r := New(catalog,
			WithClock(mock),
			WithLocation(time.UTC),
			WithIntN(func(int) int { return tt.index }),
		)
		reply := r.Respond("kitne baje hain")
		assert.Equal(t, "time", reply.Category)
		assert.Equal(t, tt.want, reply.Text)
	}
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
default: fallback
categories:
  - name: fallback
    templates: ["hello {{name}}"]
`))
	require.NoError(t, err)

	reply := New(catalog).Respond("anything")
	assert.Equal(t, "hello {{name}}", reply.Text)
}

func TestParseCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing default",
			yaml: "categories:\n  - name: a\n    pattern: a\n    templates: [x]\n",
			want: "default category is required",
		},
		{
			name: "undefined default",
			yaml: "default: none\ncategories:\n  - name: a\n    pattern: a\n    templates: [x]\n",
			want: "is not defined",
		},
		{
			name: "no templates",
			yaml: "default: a\ncategories:\n  - name: a\n    templates: []\n",
			want: "has no templates",
		},
		{
			name: "bad pattern",
			yaml: "default: d\ncategories:\n  - name: a\n    pattern: \"(\"\n    templates: [x]\n  - name: d\n    templates: [y]\n",
			want: "invalid pattern",
		},
		{
			name: "missing pattern",
			yaml: "default: d\ncategories:\n  - name: a\n    templates: [x]\n  - name: d\n    templates: [y]\n",
			want: "pattern is required",
		},
		{
			name: "duplicate",
			yaml: "default: d\ncategories:\n  - name: d\n    templates: [x]\n  - name: d\n    templates: [y]\n",
			want: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "unexpected error: %v", err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "default: other\ncategories:\n  - name: cricket\n    pattern: \"(cricket|match)\"\n    templates: [\"Kal match hai!\"]\n  - name: other\n    templates: [\"Hmm.\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kal match hai!"}, catalog.Templates("cricket"))
	assert.Equal(t, "cricket", catalog.Classify("aaj ka Match"))

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	builtin, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, "default", builtin.Default)
}
