package rdx

// Attrs are formatting attributes of a run of rich text,
// or the attributes of an XML node.
type Attrs map[string]Any

func (at Attrs) Clone() Attrs {
	if at == nil {
		return nil
	}
	c := make(Attrs, len(at))
	for k, v := range at {
		c[k] = v
	}
	return c
}

// Equal treats nil and empty as the same.
func (at Attrs) Equal(b Attrs) bool {
	if len(at) != len(b) {
		return false
	}
	for k, v := range at {
		w, ok := b[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

func (at Attrs) Keys() []string {
	return sortedKeys(at)
}
