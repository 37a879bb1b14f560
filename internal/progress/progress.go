// Package progress provides Reporter implementations for deployment output.
package progress

import "github.com/mirajehossain/phasedmigrate/internal/migrator"

var (
	_ migrator.Reporter = (*Console)(nil)
	_ migrator.Reporter = (*TeamCity)(nil)
	_ migrator.Reporter = (*Log)(nil)
	_ migrator.Reporter = Discard{}
)

// blocks tracks the names of open blocks.
type blocks []string

func (b *blocks) push(name string) { *b = append(*b, name) }

// pop closes name and every block opened after it. It reports false and
// leaves the stack alone when name is not open.
func (b *blocks) pop(name string) bool {
	for i := len(*b) - 1; i >= 0; i-- {
		if (*b)[i] == name {
			*b = (*b)[:i]
			return true
		}
	}
	return false
}

// Discard drops all output.
type Discard struct{}

func (Discard) Report(string)     {}
func (Discard) BeginBlock(string) {}
func (Discard) EndBlock(string)   {}
