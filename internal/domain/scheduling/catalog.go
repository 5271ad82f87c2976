package scheduling

import "strings"

// Kind tags an appointment type as patient-facing or as a reason for
// provider unavailability.
type Kind string

const (
	KindBookable    Kind = "bookable"
	KindBlockReason Kind = "block_reason"
)

// AppointmentType is one entry of the schedule catalog.
type AppointmentType struct {
	Name            string `json:"name" yaml:"name"`
	DefaultDuration int    `json:"default_duration" yaml:"default_duration"`
	ColorCode       string `json:"color_code" yaml:"color_code"`
	Kind            Kind   `json:"kind" yaml:"kind"`
}

// BlockReasons are always present in the catalog and cannot be removed.
var BlockReasons = []AppointmentType{
	{Name: "Block Time", DefaultDuration: 30, ColorCode: BlockColor, Kind: KindBlockReason},
	{Name: "Out of Office", DefaultDuration: 60, ColorCode: BlockColor, Kind: KindBlockReason},
	{Name: "Meeting", DefaultDuration: 30, ColorCode: BlockColor, Kind: KindBlockReason},
	{Name: "Surgery", DefaultDuration: 60, ColorCode: BlockColor, Kind: KindBlockReason},
	{Name: "Lunch", DefaultDuration: 60, ColorCode: BlockColor, Kind: KindBlockReason},
	{Name: "Other", DefaultDuration: 30, ColorCode: BlockColor, Kind: KindBlockReason},
	// Admin is not among the classic block reasons; it is kept so the demo
	// schedule's admin blocks classify as blocks.
	{Name: "Admin", DefaultDuration: 30, ColorCode: BlockColor, Kind: KindBlockReason},
}

// Catalog is an immutable set of appointment types.
type Catalog struct {
	types  []AppointmentType
	byName map[string]int
	kinds  map[string]Kind
}

// NewCatalog builds a catalog from types and the built-in block reasons. A
// listed type that shares a block reason's name is overridden by the block
// reason, so a block reason can never be reclassified as bookable. Later
// duplicates of an exact name are dropped.
func NewCatalog(types []AppointmentType) *Catalog {
	c := &Catalog{
		byName: make(map[string]int),
		kinds:  make(map[string]Kind),
	}
	reserved := make(map[string]bool, len(BlockReasons))
	for _, b := range BlockReasons {
		reserved[strings.ToLower(b.Name)] = true
	}
	for _, t := range types {
		if reserved[strings.ToLower(t.Name)] {
			continue
		}
		if t.Kind == "" {
			t.Kind = KindBookable
		}
		c.add(t)
	}
	for _, b := range BlockReasons {
		c.add(b)
	}
	return c
}

func (c *Catalog) add(t AppointmentType) {
	if _, dup := c.byName[t.Name]; dup {
		return
	}
	c.byName[t.Name] = len(c.types)
	c.types = append(c.types, t)
	if _, ok := c.kinds[strings.ToLower(t.Name)]; !ok {
		c.kinds[strings.ToLower(t.Name)] = t.Kind
	}
}

// Types returns a copy of the catalog entries in order.
func (c *Catalog) Types() []AppointmentType {
	return append([]AppointmentType(nil), c.types...)
}

// FindType looks up a type by exact name.
func (c *Catalog) FindType(name string) (AppointmentType, bool) {
	i, ok := c.byName[name]
	if !ok {
		return AppointmentType{}, false
	}
	return c.types[i], true
}

// Classify returns the kind of the named type, matching case-insensitively.
// Unknown names are bookable.
func (c *Catalog) Classify(name string) Kind {
	if k, ok := c.kinds[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return KindBookable
}
