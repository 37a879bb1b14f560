package source

import (
	"context"
	"sort"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

// Merged combines several sources into one catalog, re-sorted by migration
// number and dependency level. Sorting is stable, so definitions on the same
// level keep the order of the sources they came from.
type Merged struct {
	sources []migrator.Source
}

func Merge(sources ...migrator.Source) *Merged {
	m := &Merged{}
	for _, s := range sources {
		m.Add(s)
	}
	return m
}

func (m *Merged) Add(s migrator.Source) {
	m.sources = append(m.sources, s)
}

func (m *Merged) Migrations(ctx context.Context) ([]migrator.Migration, error) {
	var out []migrator.Migration
	for _, s := range m.sources {
		ms, err := s.Migrations(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Merged) StoredCode(ctx context.Context) ([]migrator.StoredCodeDefinition, error) {
	var out []migrator.StoredCodeDefinition
	for _, s := range m.sources {
		defs, err := s.StoredCode(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, defs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DependencyLevel < out[j].DependencyLevel })
	return out, nil
}

// Static is a source backed by fixed lists, for code-defined migrations.
type Static struct {
	MigrationList  []migrator.Migration
	StoredCodeList []migrator.StoredCodeDefinition
}

func (s *Static) Migrations(ctx context.Context) ([]migrator.Migration, error) {
	return append([]migrator.Migration(nil), s.MigrationList...), nil
}

func (s *Static) StoredCode(ctx context.Context) ([]migrator.StoredCodeDefinition, error) {
	return append([]migrator.StoredCodeDefinition(nil), s.StoredCodeList...), nil
}
