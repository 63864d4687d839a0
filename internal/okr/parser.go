/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package okr

import (
    "fmt"
    "os"
    "path/filepath"
    "regexp"
    "sort"
    "strconv"
    "strings"

    "github.com/example/okr-pulse/internal/domain"
    "github.com/rs/zerolog"
)

var (
    objectiveRe = regexp.MustCompile(`^##\s+Objective\s+(\d+):\s+(.+)$`)
    krHeaderRe  = regexp.MustCompile(`^###\s+Key Results?`)
)

// Parser loads objective catalogs from markdown files: "## Objective N: Title"
// headers followed by bullet-point key results. The period label is the file
// name stem, e.g. "may_2026".
type Parser struct {
    dir string
    log zerolog.Logger
}

func NewParser(dir string, log zerolog.Logger) *Parser { return &Parser{dir: dir, log: log} }

// LatestFile picks the most recently modified .md file in the catalog
// directory, falling back to defaultFile when the directory has none.
func (p *Parser) LatestFile(defaultFile string) (string, error) {
    entries, err := filepath.Glob(filepath.Join(p.dir, "*.md"))
    if err != nil { return "", err }
    if len(entries) == 0 {
        if defaultFile != "" {
            fallback := filepath.Join(p.dir, defaultFile)
            if _, err := os.Stat(fallback); err == nil {
                p.log.Info().Str("file", defaultFile).Msg("okr: using default file")
                return fallback, nil
            }
        }
        return "", fmt.Errorf("okr: no catalog files in %s", p.dir)
    }
    sort.Slice(entries, func(i, j int) bool {
        fi, ei := os.Stat(entries[i])
        fj, ej := os.Stat(entries[j])
        if ei != nil || ej != nil { return entries[i] > entries[j] }
        return fi.ModTime().After(fj.ModTime())
    })
    p.log.Info().Str("file", filepath.Base(entries[0])).Msg("okr: auto-detected latest file")
    return entries[0], nil
}

func (p *Parser) ParseFile(path string) (domain.OKRSet, error) {
    data, err := os.ReadFile(path)
    if err != nil { return domain.OKRSet{}, err }
    period := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
    set := parse(string(data), period)
    p.log.Info().Str("period", period).Int("objectives", len(set.Objectives)).Msg("okr: parsed catalog")
    return set, nil
}

func parse(content, period string) domain.OKRSet {
    var objectives []domain.Objective
    var cur *domain.Objective
    for _, raw := range strings.Split(content, "\n") {
        line := strings.TrimSpace(raw)
        if m := objectiveRe.FindStringSubmatch(line); m != nil {
            if cur != nil { objectives = append(objectives, *cur) }
            num, _ := strconv.Atoi(m[1])
            cur = &domain.Objective{Number: num, Title: m[2]}
            continue
        }
        if krHeaderRe.MatchString(line) { continue }
        // key results are numbered sequentially within the objective
        if strings.HasPrefix(line, "-") && cur != nil {
            text := strings.TrimSpace(strings.TrimPrefix(line, "-"))
            if text == "" { continue }
            cur.KeyResults = append(cur.KeyResults, domain.KeyResult{Number: len(cur.KeyResults) + 1, Text: text})
        }
    }
    if cur != nil { objectives = append(objectives, *cur) }
    return domain.OKRSet{Period: period, Objectives: objectives}
}

func (p *Parser) Load(autoDetect bool, defaultFile string) (domain.OKRSet, error) {
    if autoDetect {
        path, err := p.LatestFile(defaultFile)
        if err != nil { return domain.OKRSet{}, err }
        return p.ParseFile(path)
    }
    if defaultFile == "" { return domain.OKRSet{}, fmt.Errorf("okr: default file required when auto-detect is off") }
    return p.ParseFile(filepath.Join(p.dir, defaultFile))
}
