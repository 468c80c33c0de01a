package table

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind decides how a column compares during sorting.
type Kind int

const (
	Text Kind = iota
	Numeric
)

// Column describes one table column.
type Column[T any] struct {
	ID     string
	Header string
	Kind   Kind
	Value  func(T) any
	Width  int
}

// Customization reshapes the column set once, when a controller is built.
type Customization struct {
	Hidden  []string          `yaml:"hidden"`
	Order   []string          `yaml:"order"`
	Widths  map[string]int    `yaml:"widths"`
	Headers map[string]string `yaml:"headers"`
}

// ParsePreset decodes a YAML customization document.
func ParsePreset(data []byte) (Customization, error) {
	var preset Customization
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return Customization{}, fmt.Errorf("table: parse preset: %w", err)
	}
	return preset, nil
}

// LoadPreset reads a YAML customization file.
func LoadPreset(path string) (Customization, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Customization{}, fmt.Errorf("table: read preset: %w", err)
	}
	return ParsePreset(data)
}

// customize drops hidden columns, applies width and header overrides, then
// places columns named in Order first. Unnamed columns follow in their
// original relative order.
func customize[T any](columns []Column[T], c Customization) []Column[T] {
	hidden := make(map[string]bool, len(c.Hidden))
	for _, id := range c.Hidden {
		hidden[id] = true
	}
	remaining := make([]Column[T], 0, len(columns))
	for _, column := range columns {
		if hidden[column.ID] {
			continue
		}
		if width, ok := c.Widths[column.ID]; ok && width > 0 {
			column.Width = width
		}
		if header, ok := c.Headers[column.ID]; ok && header != "" {
			column.Header = header
		}
		remaining = append(remaining, column)
	}
	if len(c.Order) == 0 {
		return remaining
	}
	ordered := make([]Column[T], 0, len(remaining))
	placed := make(map[string]bool, len(c.Order))
	for _, id := range c.Order {
		for _, column := range remaining {
			if column.ID == id && !placed[id] {
				ordered = append(ordered, column)
				placed[id] = true
			}
		}
	}
	for _, column := range remaining {
		if !placed[column.ID] {
			ordered = append(ordered, column)
		}
	}
	return ordered
}

// cellText renders a cell value for filtering and display.
func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func cellNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
