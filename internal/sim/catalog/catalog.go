package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicate = errors.New("duplicate catalog entry")
	ErrUnknown   = errors.New("unknown catalog entry")
	ErrLayering  = errors.New("part is not from a lower layer")
)

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Item is a product. Base items have no parts and no tools.
// AssembleValue and BaseItems are filled in by Finalize.
type Item struct {
	Name   string      `json:"name"`
	Volume int         `json:"volume"`
	Value  int         `json:"value"`
	Level  int         `json:"level"`
	Parts  []ItemCount `json:"parts,omitempty"`
	Tools  []string    `json:"tools,omitempty"`

	AssembleValue int         `json:"assemble_value"`
	BaseItems     []ItemCount `json:"base_items,omitempty"`
}

func (it *Item) NeedsAssembly() bool { return len(it.Parts) > 0 || len(it.Tools) > 0 }

func (it *Item) PartCount(name string) int {
	for _, p := range it.Parts {
		if p.Item == name {
			return p.Count
		}
	}
	return 0
}

type Tool struct {
	Name   string   `json:"name"`
	Volume int      `json:"volume"`
	Value  int      `json:"value"`
	Roles  []string `json:"roles"`
}

type Role struct {
	Name       string   `json:"name"`
	Speed      int      `json:"speed"`
	MaxLoad    int      `json:"max_load"`
	MaxBattery int      `json:"max_battery"`
	Tools      []string `json:"tools"`
}

func (r *Role) CanUse(tool string) bool {
	for _, t := range r.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Catalog owns every item, tool and role of one run. Items keep
// generation order; Levels groups item names by graph layer.
type Catalog struct {
	Items     []*Item
	Tools     []*Tool
	Roles     []*Role
	Levels    [][]string
	Resources []string

	items map[string]*Item
	tools map[string]*Tool
	roles map[string]*Role
}

func New() *Catalog {
	return &Catalog{
		items: map[string]*Item{},
		tools: map[string]*Tool{},
		roles: map[string]*Role{},
	}
}

func (c *Catalog) AddRole(r *Role) error {
	if _, ok := c.roles[r.Name]; ok {
		return fmt.Errorf("role %q: %w", r.Name, ErrDuplicate)
	}
	c.roles[r.Name] = r
	c.Roles = append(c.Roles, r)
	return nil
}

// AddTool registers a tool and adds it to the tool lists of its roles.
func (c *Catalog) AddTool(t *Tool) error {
	if c.known(t.Name) {
		return fmt.Errorf("tool %q: %w", t.Name, ErrDuplicate)
	}
	for _, rn := range t.Roles {
		if _, ok := c.roles[rn]; !ok {
			return fmt.Errorf("tool %q role %q: %w", t.Name, rn, ErrUnknown)
		}
	}
	c.tools[t.Name] = t
	c.Tools = append(c.Tools, t)
	for _, rn := range t.Roles {
		r := c.roles[rn]
		r.Tools = append(r.Tools, t.Name)
	}
	return nil
}

func (c *Catalog) AddItem(it *Item) error {
	if c.known(it.Name) {
		return fmt.Errorf("item %q: %w", it.Name, ErrDuplicate)
	}
	for it.Level >= len(c.Levels) {
		c.Levels = append(c.Levels, nil)
	}
	c.Levels[it.Level] = append(c.Levels[it.Level], it.Name)
	c.items[it.Name] = it
	c.Items = append(c.Items, it)
	return nil
}

func (c *Catalog) MarkResource(name string) error {
	it, ok := c.items[name]
	if !ok {
		return fmt.Errorf("resource %q: %w", name, ErrUnknown)
	}
	if it.NeedsAssembly() {
		return fmt.Errorf("resource %q is not a base item", name)
	}
	c.Resources = append(c.Resources, name)
	return nil
}

func (c *Catalog) known(name string) bool {
	_, isItem := c.items[name]
	_, isTool := c.tools[name]
	return isItem || isTool
}

func (c *Catalog) Item(name string) (*Item, bool) {
	it, ok := c.items[name]
	return it, ok
}

func (c *Catalog) Tool(name string) (*Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

func (c *Catalog) Role(name string) (*Role, bool) {
	r, ok := c.roles[name]
	return r, ok
}

// Volume returns the volume of an item or tool.
func (c *Catalog) Volume(name string) (int, bool) {
	if it, ok := c.items[name]; ok {
		return it.Volume, true
	}
	if t, ok := c.tools[name]; ok {
		return t.Volume, true
	}
	return 0, false
}

// Value returns the base value of an item or tool.
func (c *Catalog) Value(name string) (int, bool) {
	if it, ok := c.items[name]; ok {
		return it.Value, true
	}
	if t, ok := c.tools[name]; ok {
		return t.Value, true
	}
	return 0, false
}

// Known reports whether name is an item or a tool.
func (c *Catalog) Known(name string) bool { return c.known(name) }

func (c *Catalog) BaseItems() []*Item {
	var out []*Item
	for _, it := range c.Items {
		if !it.NeedsAssembly() {
			out = append(out, it)
		}
	}
	return out
}

func (c *Catalog) AssembledItems() []*Item {
	var out []*Item
	for _, it := range c.Items {
		if it.NeedsAssembly() {
			out = append(out, it)
		}
	}
	return out
}

// MaxLoad is the carry capacity of the strongest role.
func (c *Catalog) MaxLoad() int {
	max := 0
	for _, r := range c.Roles {
		if r.MaxLoad > max {
			max = r.MaxLoad
		}
	}
	return max
}

// Finalize validates the layering of the item graph and computes
// AssembleValue and BaseItems for every item in one pass ordered by level.
func (c *Catalog) Finalize() error {
	for _, level := range c.Levels {
		for _, name := range level {
			it := c.items[name]
			for _, p := range it.Parts {
				sub, ok := c.items[p.Item]
				if !ok {
					return fmt.Errorf("item %q part %q: %w", it.Name, p.Item, ErrUnknown)
				}
				if sub.Level >= it.Level {
					return fmt.Errorf("item %q (level %d) part %q (level %d): %w", it.Name, it.Level, sub.Name, sub.Level, ErrLayering)
				}
				if p.Count <= 0 {
					return fmt.Errorf("item %q part %q: non-positive count %d", it.Name, p.Item, p.Count)
				}
			}
			for _, tn := range it.Tools {
				if _, ok := c.tools[tn]; !ok {
					return fmt.Errorf("item %q tool %q: %w", it.Name, tn, ErrUnknown)
				}
			}

			if !it.NeedsAssembly() {
				it.AssembleValue = 0
				it.BaseItems = []ItemCount{{Item: it.Name, Count: 1}}
				continue
			}
			av := 1
			base := map[string]int{}
			for _, p := range it.Parts {
				sub := c.items[p.Item]
				av += p.Count * sub.AssembleValue
				for _, b := range sub.BaseItems {
					base[b.Item] += p.Count * b.Count
				}
			}
			it.AssembleValue = av
			it.BaseItems = sortedCounts(base)
		}
	}
	return nil
}

// Digest is a stable hash over the catalog content.
func (c *Catalog) Digest() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(c.Roles)
	_ = enc.Encode(c.Tools)
	_ = enc.Encode(c.Items)
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCounts(m map[string]int) []ItemCount {
	out := make([]ItemCount, 0, len(m))
	for k, v := range m {
		out = append(out, ItemCount{Item: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// SortedCounts turns a name->count map into a name-ordered list, dropping
// non-positive counts.
func SortedCounts(m map[string]int) []ItemCount {
	out := sortedCounts(m)
	n := 0
	for _, ic := range out {
		if ic.Count > 0 {
			out[n] = ic
			n++
		}
	}
	return out[:n]
}
