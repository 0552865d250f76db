package index

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles/*.yaml
var styleFS embed.FS

// PatternKind classifies a reusable conversational snippet.
type PatternKind string

const (
	PatternOpening    PatternKind = "opening"
	PatternTransition PatternKind = "transition"
	PatternEmphasis   PatternKind = "emphasis"
	PatternClosing    PatternKind = "closing"
)

// StylePattern is one reusable conversational snippet, tagged by episode
// style and embedded like a chunk.
type StylePattern struct {
	ID        string      `yaml:"-"`
	Style     string      `yaml:"-"`
	Kind      PatternKind `yaml:"kind"`
	Text      string      `yaml:"text"`
	Embedding []float32   `yaml:"-"`
}

type styleFile struct {
	Style    string         `yaml:"style"`
	Patterns []StylePattern `yaml:"patterns"`
}

// Styles lists the episode styles shipped with the module, sorted.
func Styles() ([]string, error) {
	entries, err := styleFS.ReadDir("styles")
	if err != nil {
		return nil, fmt.Errorf("read styles dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadPatterns parses the embedded pattern file for one style.
func LoadPatterns(style string) ([]StylePattern, error) {
	style = strings.ToLower(strings.TrimSpace(style))
	data, err := styleFS.ReadFile("styles/" + style + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown episode style %q: %w", style, err)
	}
	var parsed styleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse style %q: %w", style, err)
	}
	patterns := make([]StylePattern, 0, len(parsed.Patterns))
	for i, p := range parsed.Patterns {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		p.ID = fmt.Sprintf("%s-%d", style, i)
		p.Style = style
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("style %q has no patterns", style)
	}
	return patterns, nil
}

// BuildStyleBank embeds the style's patterns and assembles the style side of
// the dual index. The bank is independent of any document.
func BuildStyleBank(ctx context.Context, embedder Embedder, style string) (*Index, error) {
	patterns, err := LoadPatterns(style)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(patterns))
	for i, p := range patterns {
		texts[i] = p.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed style patterns: %w", err)
	}

	ix := &Index{kind: KindStyle, scope: style}
	ix.entries = make([]entry, len(patterns))
	for i, p := range patterns {
		ix.entries[i] = entry{
			chunkID: p.ID,
			locator: fmt.Sprintf("style:%s:%s", p.Style, p.Kind),
			ordinal: i,
			text:    p.Text,
			vector:  vectors[i],
		}
	}
	return ix, nil
}

// PatternsByKind filters a style's patterns to one snippet kind.
func PatternsByKind(patterns []StylePattern, kind PatternKind) []StylePattern {
	var out []StylePattern
	for _, p := range patterns {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}
