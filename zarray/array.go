// Package zarray implements a fast, O(1)-erase array used to hold the
// pipes attached to a socket pattern.
//
// Items store their own index, so erase-by-value and swap are both O(1)
// at the cost of requiring every stored item to implement Indexed. One
// Array[T] is instantiated per use site; a pipe that lives in two Arrays
// at once (e.g. the fq input set and lb output set of a DEALER or REQ)
// is wrapped in a separate Indexed adapter for each Array.
package zarray

// Indexed is implemented by anything stored in an Array. SetArrayIndex is
// called by the Array on every push/erase/swap that moves the item, so
// the item can later be erased in O(1) via Array.Erase without a linear
// scan.
type Indexed interface {
	ArrayIndex() int
	SetArrayIndex(int)
}

// Array is a fast, pointer-stable collection with O(1) append, erase and
// swap. The zero value is an empty, ready-to-use Array.
type Array[T Indexed] struct {
	items []T
}

// Len returns the number of items in the array.
func (a *Array[T]) Len() int {
	return len(a.items)
}

// Empty reports whether the array holds no items.
func (a *Array[T]) Empty() bool {
	return len(a.items) == 0
}

// At returns the item at index, same as the C++ operator[].
func (a *Array[T]) At(index int) T {
	return a.items[index]
}

// PushBack appends item, recording its new index.
func (a *Array[T]) PushBack(item T) {
	item.SetArrayIndex(len(a.items))
	a.items = append(a.items, item)
}

// Erase removes item using the index it self-reports, swapping the last
// item into its slot. O(1).
func (a *Array[T]) Erase(item T) {
	a.EraseIndex(item.ArrayIndex())
}

// EraseIndex removes the item at index, swapping the last item into its
// slot and updating that item's recorded index.
func (a *Array[T]) EraseIndex(index int) {
	last := len(a.items) - 1
	moved := a.items[last]
	moved.SetArrayIndex(index)
	a.items[index] = moved
	var zero T
	a.items[last] = zero
	a.items = a.items[:last]
}

// Swap exchanges the items at index1 and index2, updating both items'
// recorded indices.
func (a *Array[T]) Swap(index1, index2 int) {
	if index1 == index2 {
		return
	}
	a.items[index1].SetArrayIndex(index2)
	a.items[index2].SetArrayIndex(index1)
	a.items[index1], a.items[index2] = a.items[index2], a.items[index1]
}

// Index returns item's recorded index, the inverse of At.
func (a *Array[T]) Index(item T) int {
	return item.ArrayIndex()
}

// Clear empties the array without shrinking its backing storage.
func (a *Array[T]) Clear() {
	var zero T
	for i := range a.items {
		a.items[i] = zero
	}
	a.items = a.items[:0]
}

// Items returns the backing slice directly. Callers must not retain it
// across a Swap/Erase/PushBack on a, since those may reallocate or
// reorder it.
func (a *Array[T]) Items() []T {
	return a.items
}
