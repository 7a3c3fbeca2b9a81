package game

import "slices"

// Symbol is one picture on a card. Symbols compare by value.
type Symbol string

// CatalogInfo describes a symbol catalog for the lobby.
type CatalogInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Catalog is a fixed alphabet of distinct symbols.
type Catalog struct {
	Name    string
	Symbols []Symbol
}

// Info returns the catalog's name and size.
func (c Catalog) Info() CatalogInfo {
	return CatalogInfo{Name: c.Name, Size: len(c.Symbols)}
}

// All returns a copy of every symbol in catalog order.
func (c Catalog) All() []Symbol {
	return slices.Clone(c.Symbols)
}

// Len returns the number of symbols.
func (c Catalog) Len() int {
	return len(c.Symbols)
}

// Contains reports whether s belongs to the catalog.
func (c Catalog) Contains(s Symbol) bool {
	return slices.Contains(c.Symbols, s)
}

// Contains reports whether set holds s.
func Contains(set []Symbol, s Symbol) bool {
	return slices.Contains(set, s)
}

// Shared returns the symbols present in both a and b, in a's order.
func Shared(a, b []Symbol) []Symbol {
	var out []Symbol
	for _, s := range a {
		if slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
