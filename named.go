// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"fmt"
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NamedTensors maps names to tensors, remembering insertion order.
//
// The order is significant: Encode lays tensors out in this order, and
// Decode returns tensors in the order of their specs.
type NamedTensors struct {
	m *orderedmap.OrderedMap[string, Tensor]
}

// NewNamedTensors returns a NamedTensors holding the given tensors, in
// order. It fails if two tensors share the same name.
func NewNamedTensors(tensors ...Tensor) (*NamedTensors, error) {
	nt := &NamedTensors{m: orderedmap.New[string, Tensor](len(tensors))}
	for _, t := range tensors {
		if err := nt.Add(t); err != nil {
			return nil, err
		}
	}
	return nt, nil
}

// Add appends a tensor, failing if its name is already present.
func (nt *NamedTensors) Add(t Tensor) error {
	if _, present := nt.m.Get(t.name); present {
		return fmt.Errorf("duplicate tensor name %q", t.name)
	}
	nt.m.Set(t.name, t)
	return nil
}

// Get returns the tensor with the given name, and whether it was found.
func (nt *NamedTensors) Get(name string) (Tensor, bool) {
	return nt.m.Get(name)
}

// Delete removes the tensor with the given name, reporting whether it
// was present.
func (nt *NamedTensors) Delete(name string) bool {
	_, present := nt.m.Delete(name)
	return present
}

// Len returns the number of tensors.
func (nt *NamedTensors) Len() int {
	return nt.m.Len()
}

// Names returns the tensor names, in order.
func (nt *NamedTensors) Names() []string {
	names := make([]string, 0, nt.m.Len())
	for pair := nt.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Tensors returns the tensors, in order.
func (nt *NamedTensors) Tensors() []Tensor {
	tensors := make([]Tensor, 0, nt.m.Len())
	for pair := nt.m.Oldest(); pair != nil; pair = pair.Next() {
		tensors = append(tensors, pair.Value)
	}
	return tensors
}

// All iterates over name/tensor pairs, in order.
func (nt *NamedTensors) All() iter.Seq2[string, Tensor] {
	return func(yield func(string, Tensor) bool) {
		for pair := nt.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Merge adds all tensors of other after the ones already present,
// failing on the first duplicate name.
func (nt *NamedTensors) Merge(other *NamedTensors) error {
	for _, t := range other.All() {
		if err := nt.Add(t); err != nil {
			return err
		}
	}
	return nil
}
