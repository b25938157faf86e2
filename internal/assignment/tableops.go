package assignment

import (
	"context"
	"fmt"

	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

// setTableState persists a table's lifecycle state under /table/<name>,
// overwriting unconditionally: table-state transitions are Master-
// unilateral the same way force-to-OFFLINE is.
func (m *Manager) setTableState(ctx context.Context, table string, state region.TableState) error {
	data := []byte{byte(state)}
	if err := m.coord.SetData(ctx, m.tablePath(table), data, coordstore.ForceCAS); err != nil {
		return fmt.Errorf("assignment: set table state for %s: %w", table, err)
	}
	m.tables[table] = state
	return nil
}

// TableState returns the Manager's last-known state for table.
func (m *Manager) TableState(table string) (region.TableState, bool) {
	s, ok := m.tables[table]
	return s, ok
}

// EnableTable fabricates an OFFLINE node per region of the table and
// assigns the regions round-robin over live, then marks the table
// ENABLED. Its callers (the admin client) invoke it directly rather than
// through the dispatcher; it issues one Assign per region.
func (m *Manager) EnableTable(ctx context.Context, table string, regions []region.Info, live []region.ServerName) error {
	if len(live) == 0 {
		return fmt.Errorf("assignment: enable %s: no live servers", table)
	}
	if err := m.setTableState(ctx, table, region.TableEnabling); err != nil {
		return err
	}
	for i, info := range regions {
		m.LearnRegion(info)
		dest := live[i%len(live)]
		if err := m.Assign(ctx, info, dest); err != nil {
			return fmt.Errorf("assignment: enable %s: assign %s: %w", table, info.EncodedName(), err)
		}
	}
	return m.setTableState(ctx, table, region.TableEnabled)
}

// DisableTable sets every region's plan destination to the zero value
// (disable encoding) and unassigns each from its current owner, then
// marks the table DISABLED. Per the design notes, this is not crash-
// durable: a Master that fails over mid-disable will finish closing
// regions already in transition by inertia, but un-started closes are
// lost and the admin client must retry.
func (m *Manager) DisableTable(ctx context.Context, table string, regions []region.Info) error {
	if err := m.setTableState(ctx, table, region.TableDisabling); err != nil {
		return err
	}
	for _, info := range regions {
		name := info.EncodedName()
		owner, found, err := m.cat.LocationOf(name)
		if err != nil {
			return fmt.Errorf("assignment: disable %s: locate %s: %w", table, name, err)
		}
		if !found || owner.IsZero() {
			continue
		}
		if err := m.Unassign(ctx, info, owner, region.ServerName{}); err != nil {
			return fmt.Errorf("assignment: disable %s: unassign %s: %w", table, name, err)
		}
	}
	return m.setTableState(ctx, table, region.TableDisabled)
}
