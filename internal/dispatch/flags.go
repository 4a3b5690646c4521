package dispatch

// Change is a bitmask reporting which model regions a dispatch touched, so
// the renderer can redraw only what changed.
type Change uint32

const None Change = 0

const (
	Cursor Change = 1 << iota
	Scroll
	Data
	Schema
	Filters
	Status
	Workspace
	Workspaces
	Sidebar
	Connection
	Tables
	Focus
	Edit
	Layout
)

// View bundles the flags touched by ordinary navigation.
const View = Cursor | Scroll | Data

const All Change = 0xFFFFFFFF

// Has reports whether all bits in mask are set.
func (c Change) Has(mask Change) bool { return c&mask == mask }
