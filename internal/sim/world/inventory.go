package world

import "cityrun.ai/internal/sim/catalog"

// Inventory maps item or tool names to counts. Zero counts are removed.
type Inventory map[string]int

func (inv Inventory) Count(name string) int { return inv[name] }

func (inv Inventory) Add(name string, n int) {
	if n <= 0 {
		return
	}
	inv[name] += n
}

// Remove takes n of name if available and reports success.
func (inv Inventory) Remove(name string, n int) bool {
	if n <= 0 || inv[name] < n {
		return false
	}
	inv[name] -= n
	if inv[name] == 0 {
		delete(inv, name)
	}
	return true
}

func (inv Inventory) Empty() bool { return len(inv) == 0 }

func (inv Inventory) Sorted() []catalog.ItemCount { return catalog.SortedCounts(inv) }

func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}
