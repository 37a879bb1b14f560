package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const indentWidth = 3

// Console writes human readable output, indenting each nested block.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	open   blocks
	header lipgloss.Style
	muted  lipgloss.Style
}

// NewConsole writes to w. Colors are used only when w is a terminal that
// supports them.
func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:      w,
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		muted:  r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (c *Console) Report(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.line(message)
}

func (c *Console) BeginBlock(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.line(c.header.Render("Begin " + name))
	c.open.push(name)
}

func (c *Console) EndBlock(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open.pop(name) {
		c.line(c.muted.Render(fmt.Sprintf("End %s (no open block with that name)", name)))
		return
	}
	c.line(c.header.Render("End " + name))
}

func (c *Console) line(s string) {
	fmt.Fprintf(c.w, "%s%s\n", strings.Repeat(" ", len(c.open)*indentWidth), s)
}
