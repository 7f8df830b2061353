package codec

// Releaser is implemented by codecs whose values can hold objects.
type Releaser[T any] interface {
	// Release releases every object reachable from v.
	Release(v T)
}

// Release releases every object reachable from v through c: record fields,
// sequence elements, map keys and values, present optionals and variant
// payloads. Values of codecs that cannot hold objects are left alone.
// Releasing twice is harmless.
func Release[T any](c Codec[T], v T) {
	if r, ok := c.(Releaser[T]); ok {
		r.Release(v)
	}
}

func (o Object[T]) Release(v *T) {
	if v == nil {
		return
	}
	if g := o.Guard(v); g != nil {
		g.Release()
	}
}

func (c sequenceCodec[T]) Release(v []T) {
	if _, ok := c.elem.(Releaser[T]); !ok {
		return
	}
	for _, e := range v {
		Release(c.elem, e)
	}
}

func (c mapCodec[K, V]) Release(v map[K]V) {
	for k, e := range v {
		Release(c.key, k)
		Release(c.val, e)
	}
}

func (c optionalCodec[T]) Release(v *T) {
	if v != nil {
		Release(c.inner, *v)
	}
}

func (c recordCodec[T]) Release(v T) {
	for _, f := range c.fields {
		if f.release != nil {
			f.release(&v)
		}
	}
}

func (c variantCodec[T]) Release(v T) {
	_, cs, err := c.caseOf(v)
	if err != nil || cs.Release == nil {
		return
	}
	cs.Release(v)
}

func (c customCodec[T, B]) Release(v T) {
	if _, ok := c.base.(Releaser[B]); !ok {
		return
	}
	if bv, err := c.to(v); err == nil {
		Release(c.base, bv)
	}
}
