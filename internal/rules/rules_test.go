package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/store"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSeed(t, `
rules:
  - tag: AI
    text: Network optimization deals that mention ML count as AI.
  - tag: genai
    text: Chatbot and copilot deals are Gen AI.
`)

	rules, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, model.TagAI, rules[0].Tag)
	assert.Equal(t, model.TagGenAI, rules[1].Tag, "tag aliases normalize to the canonical form")
	assert.Contains(t, rules[1].Text, "copilot")
}

func TestLoadFileRejectsUnknownTag(t *testing.T) {
	path := writeSeed(t, `
rules:
  - tag: Blockchain
    text: nope
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Blockchain")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestManagerRoundTripPreservesOrder(t *testing.T) {
	m := NewManager(store.NewMemory())
	ctx := context.Background()

	in := []model.CustomInstruction{
		{Tag: model.TagData, Text: "first"},
		{Tag: model.TagAI, Text: "second"},
		{Tag: model.TagData, Text: "third"},
	}
	require.NoError(t, m.Save(ctx, in))

	out, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestManagerLoadEmpty(t *testing.T) {
	m := NewManager(store.NewMemory())

	rules, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestManagerAdd(t *testing.T) {
	m := NewManager(store.NewMemory())
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, model.CustomInstruction{Tag: "analytics", Text: "dashboards"}))
	require.NoError(t, m.Add(ctx, model.CustomInstruction{Tag: model.TagAI, Text: "models"}))

	rules, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.TagAnalytics, rules[0].Tag)
	assert.Equal(t, "models", rules[1].Text)

	err = m.Add(ctx, model.CustomInstruction{Tag: "Quantum", Text: "nope"})
	require.Error(t, err)
}

func TestManagerClear(t *testing.T) {
	m := NewManager(store.NewMemory())
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, []model.CustomInstruction{{Tag: model.TagAI, Text: "x"}}))
	require.NoError(t, m.Clear(ctx))

	rules, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rules)
}
