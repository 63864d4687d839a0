package okr

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const sampleCatalog = `# Company OKRs

## Objective 1: Improve reliability

### Key Results

- Reduce error rate to 0.1%
- P99 latency under 300ms

## Objective 2: Grow adoption

### Key Results

- Onboard 5 new teams
`

func TestParseCatalog(t *testing.T) {
    set := parse(sampleCatalog, "2025_q3")

    assert.Equal(t, "2025_q3", set.Period)
    require.Len(t, set.Objectives, 2)

    obj1 := set.Objectives[0]
    assert.Equal(t, 1, obj1.Number)
    assert.Equal(t, "Improve reliability", obj1.Title)
    require.Len(t, obj1.KeyResults, 2)
    assert.Equal(t, 1, obj1.KeyResults[0].Number)
    assert.Equal(t, "Reduce error rate to 0.1%", obj1.KeyResults[0].Text)
    assert.Equal(t, 2, obj1.KeyResults[1].Number)

    assert.Equal(t, "obj1", obj1.ID())
    assert.Equal(t, "obj1_kr2", obj1.KeyResultID(2))

    obj2 := set.Objectives[1]
    assert.Equal(t, 2, obj2.Number)
    require.Len(t, obj2.KeyResults, 1)
}

func TestParseEmptyContent(t *testing.T) {
    set := parse("", "empty")
    assert.Equal(t, "empty", set.Period)
    assert.Empty(t, set.Objectives)
}

func TestParseSkipsBulletsOutsideObjectives(t *testing.T) {
    set := parse("- stray bullet\n\n## Objective 1: Something\n- KR one\n", "x")
    require.Len(t, set.Objectives, 1)
    require.Len(t, set.Objectives[0].KeyResults, 1)
    assert.Equal(t, "KR one", set.Objectives[0].KeyResults[0].Text)
}

func TestLoadFromFile(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "may_2026.md")
    require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

    p := NewParser(dir, zerolog.Nop())
    set, err := p.Load(true, "")
    require.NoError(t, err)
    assert.Equal(t, "may_2026", set.Period)
    assert.Len(t, set.Objectives, 2)
}

func TestLoadMissingDirFails(t *testing.T) {
    p := NewParser(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
    _, err := p.Load(true, "")
    assert.Error(t, err)
}

func TestLoadExplicitFile(t *testing.T) {
    dir := t.TempDir()
    require.NoError(t, os.WriteFile(filepath.Join(dir, "fixed.md"), []byte(sampleCatalog), 0o644))

    p := NewParser(dir, zerolog.Nop())
    set, err := p.Load(false, "fixed.md")
    require.NoError(t, err)
    assert.Equal(t, "fixed", set.Period)

    _, err = p.Load(false, "")
    assert.Error(t, err)
}
