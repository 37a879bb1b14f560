package progress

import (
	"strings"
	"sync"

	"github.com/mirajehossain/phasedmigrate/internal/logger"
)

// Log sends progress to a structured logger, tagging each entry with the
// path of open blocks.
type Log struct {
	mu   sync.Mutex
	l    *logger.Logger
	open blocks
}

func NewLog(l *logger.Logger) *Log { return &Log{l: l} }

func (p *Log) Report(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.l.Info(message, p.fields(nil))
}

func (p *Log) BeginBlock(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open.push(name)
	p.l.Info("block.begin", p.fields(nil))
}

func (p *Log) EndBlock(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fields := p.fields(map[string]any{"closing": name})
	if !p.open.pop(name) {
		p.l.Warn("block.end without matching begin", fields)
		return
	}
	p.l.Info("block.end", fields)
}

func (p *Log) fields(extra map[string]any) map[string]any {
	f := map[string]any{}
	if len(p.open) > 0 {
		f["block"] = strings.Join(p.open, " / ")
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}
