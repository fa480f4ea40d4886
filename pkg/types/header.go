package types

import (
	"net/http"
	"strings"
)

// Header is one (name, value) pair.
type Header struct {
	Name  string
	Value string
}

// HeaderVec is an ordered header list. Order is significant for request
// signing; name lookups are case-insensitive.
type HeaderVec []Header

// Add appends a header, keeping any existing ones with the same name.
func (h *HeaderVec) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces the first header named name, or appends it.
func (h *HeaderVec) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	h.Add(name, value)
}

// Del removes every header named name.
func (h *HeaderVec) Del(name string) {
	out := (*h)[:0]
	for _, hd := range *h {
		if !strings.EqualFold(hd.Name, name) {
			out = append(out, hd)
		}
	}
	*h = out
}

// Get returns the first value for name.
func (h HeaderVec) Get(name string) (string, bool) {
	for _, hd := range h {
		if strings.EqualFold(hd.Name, name) {
			return hd.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in order.
func (h HeaderVec) Values(name string) []string {
	var out []string
	for _, hd := range h {
		if strings.EqualFold(hd.Name, name) {
			out = append(out, hd.Value)
		}
	}
	return out
}

func (h HeaderVec) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Clone returns an independent copy.
func (h HeaderVec) Clone() HeaderVec {
	if h == nil {
		return nil
	}
	out := make(HeaderVec, len(h))
	copy(out, h)
	return out
}

// ApplyTo writes the headers onto an http.Header, preserving multi-values.
func (h HeaderVec) ApplyTo(dst http.Header) {
	for _, hd := range h {
		if strings.EqualFold(hd.Name, "Host") {
			continue
		}
		dst.Add(hd.Name, hd.Value)
	}
}

// FromHTTP converts an http.Header. Go does not keep wire order across
// different names, so names are emitted in sorted order.
func FromHTTP(src http.Header) HeaderVec {
	out := make(HeaderVec, 0, len(src))
	for _, name := range sortedKeys(src) {
		for _, v := range src[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}
