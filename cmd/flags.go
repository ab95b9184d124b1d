package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// formatValue is a pflag.Value that restricts a format flag to a fixed set
// of choices, so a typo fails at parse time instead of after the project
// loads. Matching is case-insensitive; the stored value is lowercased.
type formatValue struct {
	target  *string
	choices []string
}

var _ pflag.Value = (*formatValue)(nil)

func newFormatValue(target *string, def string, choices ...string) *formatValue {
	*target = def
	return &formatValue{target: target, choices: choices}
}

func (f *formatValue) String() string { return *f.target }

func (f *formatValue) Set(value string) error {
	value = strings.ToLower(value)
	for _, choice := range f.choices {
		if value == choice {
			*f.target = value
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(f.choices, ", "))
}

func (f *formatValue) Type() string { return "format" }
