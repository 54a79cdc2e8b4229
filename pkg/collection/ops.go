package collection

import "slices"

// OpKind names a mutation.
type OpKind string

const (
	OpAdd            OpKind = "add"
	OpUpdateQuantity OpKind = "update_quantity"
	OpRemove         OpKind = "remove"
	OpClear          OpKind = "clear"
)

// Op is a single mutation request. Ref selects the target of update and
// remove by server id or by key.
type Op[T any] struct {
	Kind     OpKind
	Item     T
	Ref      string
	Quantity int
}

func AddItem[T any](item T) Op[T] {
	return Op[T]{Kind: OpAdd, Item: item}
}

// SetQuantity sets the quantity of the entry matching ref. A quantity of
// zero or less removes the entry.
func SetQuantity[T any](ref string, quantity int) Op[T] {
	return Op[T]{Kind: OpUpdateQuantity, Ref: ref, Quantity: quantity}
}

func RemoveItem[T any](ref string) Op[T] {
	return Op[T]{Kind: OpRemove, Ref: ref}
}

func ClearAll[T any]() Op[T] {
	return Op[T]{Kind: OpClear}
}

// normalize validates op against items and returns it in canonical form
// together with the key of the entry it targets.
func (p Policy[T]) normalize(items []T, op Op[T]) (Op[T], string, error) {
	switch op.Kind {
	case OpAdd:
		item := op.Item
		if p.Prepare != nil {
			var err error
			if item, err = p.Prepare(item); err != nil {
				return op, "", err
			}
		}
		op.Item = item
		return op, p.Key(item), nil

	case OpUpdateQuantity, OpRemove:
		if op.Ref == "" {
			return op, "", validationError("item reference is required")
		}
		i := p.find(items, op.Ref)
		if i < 0 {
			return op, "", validationError("item is not in the " + p.Name)
		}
		if op.Kind == OpUpdateQuantity {
			if op.Quantity <= 0 {
				op.Kind, op.Quantity = OpRemove, 0
			} else if p.SetQuantity == nil {
				return op, "", validationError(p.Name + " does not support quantities")
			}
		}
		op.Item = items[i]
		return op, p.Key(items[i]), nil

	case OpClear:
		return op, "", nil
	}
	return op, "", validationError("unknown operation " + string(op.Kind))
}

// apply returns items with op applied. changed is false when op leaves the
// collection as it is.
func (p Policy[T]) apply(items []T, op Op[T], key string) (out []T, changed bool) {
	switch op.Kind {
	case OpAdd:
		i := p.indexOfKey(items, key)
		if i < 0 {
			return append(slices.Clone(items), op.Item), true
		}
		if p.Merge == nil {
			return items, false
		}
		merged, ok := p.Merge(items[i], op.Item)
		if !ok {
			return items, false
		}
		out = slices.Clone(items)
		out[i] = merged
		return out, true

	case OpUpdateQuantity:
		i := p.indexOfKey(items, key)
		if i < 0 {
			return items, false
		}
		out = slices.Clone(items)
		out[i] = p.SetQuantity(out[i], op.Quantity)
		return out, true

	case OpRemove:
		i := p.indexOfKey(items, key)
		if i < 0 {
			return items, false
		}
		return slices.Delete(slices.Clone(items), i, i+1), true

	case OpClear:
		return []T{}, len(items) > 0
	}
	return items, false
}

// find locates an entry by server id or key.
func (p Policy[T]) find(items []T, ref string) int {
	for i, it := range items {
		if p.ID != nil && p.ID(it) == ref {
			return i
		}
	}
	return p.indexOfKey(items, ref)
}

func (p Policy[T]) indexOfKey(items []T, key string) int {
	return slices.IndexFunc(items, func(it T) bool { return p.Key(it) == key })
}
