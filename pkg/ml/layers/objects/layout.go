// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package objects

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrConfiguration is returned (wrapped) when an object index table or class table is malformed.
	ErrConfiguration = errors.New("invalid object layout")

	// ErrShape is returned (wrapped), or panicked during graph building, when an observation does not
	// match the configured layout.
	ErrShape = errors.New("observation does not match object layout")
)

// AgentClass is the class label of the agent slot. It is not part of the object classes.
const AgentClass = 0

// Slot is the half-open column range [Start, End) of one entity in the observation vector.
type Slot struct {
	Start, End int
}

// Width of the slot.
func (s Slot) Width() int { return s.End - s.Start }

// Layout describes how a flat observation vector is segmented: an optional task id in column 0,
// followed by the agent slot and one slot per object.
//
// It is immutable once created with NewLayout or LayoutFromIndexToObject.
type Layout struct {
	inputSize, numTasks, numClasses int
	slots                           []Slot
	classes                         []int
}

// NewLayout validates and creates a Layout.
//
//   - inputSize is the width of the observation vector.
//   - objectIndex[i] is the first column of slot i. Slot 0 is the agent, the remaining slots are objects,
//     and the last slot ends at inputSize. If numTasks > 0 column 0 holds the task id and objectIndex[0]
//     must be 1, otherwise it must be 0.
//   - objectClasses[i] is the class label of slot i: AgentClass for slot 0, and 1..NumClasses for the
//     objects, where NumClasses is the number of distinct labels other than the agent's.
//   - numTasks is the number of tasks, 0 if there is no task column.
//
// Object slots must all have the same width, since they share one translator network.
// Any violation returns an error wrapping ErrConfiguration.
func NewLayout(inputSize int, objectIndex, objectClasses []int, numTasks int) (*Layout, error) {
	if numTasks < 0 {
		return nil, errors.Wrapf(ErrConfiguration, "numTasks must be >= 0, got %d", numTasks)
	}
	if len(objectIndex) != len(objectClasses) {
		return nil, errors.Wrapf(ErrConfiguration, "objectIndex has %d slots but objectClasses has %d labels",
			len(objectIndex), len(objectClasses))
	}
	distinct := slices.Clone(objectClasses)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	numClasses := len(distinct) - 1
	if numClasses < 1 {
		return nil, errors.Wrapf(ErrConfiguration, "degenerate class set %v: at least one object class "+
			"other than the agent's is required", objectClasses)
	}
	if len(objectIndex) < 2 {
		return nil, errors.Wrapf(ErrConfiguration, "objectIndex %v needs the agent slot and at least one object slot",
			objectIndex)
	}
	firstColumn := 0
	if numTasks > 0 {
		firstColumn = 1
	}
	if objectIndex[0] != firstColumn {
		return nil, errors.Wrapf(ErrConfiguration, "agent slot must start at column %d (numTasks=%d), got objectIndex %v",
			firstColumn, numTasks, objectIndex)
	}

	l := &Layout{
		inputSize:  inputSize,
		numTasks:   numTasks,
		numClasses: numClasses,
		slots:      make([]Slot, len(objectIndex)),
		classes:    slices.Clone(objectClasses),
	}
	for ii, start := range objectIndex {
		end := inputSize
		if ii+1 < len(objectIndex) {
			end = objectIndex[ii+1]
		}
		if end <= start {
			return nil, errors.Wrapf(ErrConfiguration, "slot %d is empty or out of order: objectIndex=%v, inputSize=%d",
				ii, objectIndex, inputSize)
		}
		l.slots[ii] = Slot{Start: start, End: end}
	}

	if objectClasses[0] != AgentClass {
		return nil, errors.Wrapf(ErrConfiguration, "slot 0 is the agent and must have class %d, got objectClasses %v",
			AgentClass, objectClasses)
	}
	for ii, class := range objectClasses[1:] {
		if class < 1 || class > numClasses {
			return nil, errors.Wrapf(ErrConfiguration, "object slot %d has class %d, object classes must be within "+
				"1..%d (contiguous labels, %d reserved for the agent): objectClasses=%v",
				ii+1, class, numClasses, AgentClass, objectClasses)
		}
	}
	for ii, slot := range l.slots[2:] {
		if slot.Width() != l.slots[1].Width() {
			return nil, errors.Wrapf(ErrConfiguration, "object slot %d has width %d, but slot 1 has width %d: "+
				"all objects must have the same number of features", ii+2, slot.Width(), l.slots[1].Width())
		}
	}
	if numTasks == 1 {
		klog.Warningf("objects: layout has a task column but a single task, the task input is constant")
	}
	klog.V(1).Infof("objects: layout with inputSize=%d, agentSize=%d, %d objects of size %d, %d classes, %d tasks",
		inputSize, l.AgentSize(), l.NumObjects(), l.ObjectSize(), numClasses, numTasks)
	return l, nil
}

// LayoutFromIndexToObject creates a Layout without task column from a per-column table of object ids:
// indexToObject[column] is the id of the entity the column belongs to. Ids must start at 0 (the agent),
// and each entity must occupy one contiguous run of columns, in order.
//
// objects holds the name of each entity: objects[0] is the agent, and the other names are mapped to classes
// in the order they are first seen, so entities with the same name share the same class.
// E.g.: indexToObject=[0,0,0,0,1,1,2,2,3,3] and objects=["agent", "target", "enemy", "enemy"] gives a
// 4-feature agent, a target in columns 4:6 (class 1) and two enemies in columns 6:8 and 8:10 (class 2).
func LayoutFromIndexToObject(indexToObject []int, objects []string) (*Layout, error) {
	if len(indexToObject) == 0 {
		return nil, errors.Wrapf(ErrConfiguration, "indexToObject is empty")
	}
	var objectIndex []int
	for column, id := range indexToObject {
		switch {
		case column == 0 && id != 0:
			return nil, errors.Wrapf(ErrConfiguration, "indexToObject must start with the agent (id 0), got %v",
				indexToObject)
		case column == 0 || id == indexToObject[column-1]+1:
			objectIndex = append(objectIndex, column)
		case id != indexToObject[column-1]:
			return nil, errors.Wrapf(ErrConfiguration, "indexToObject %v: column %d jumps from object %d to %d, "+
				"objects must be contiguous and in order", indexToObject, column, indexToObject[column-1], id)
		}
	}
	if len(objectIndex) != len(objects) {
		return nil, errors.Wrapf(ErrConfiguration, "indexToObject %v has %d objects, but %d names were given: %q",
			indexToObject, len(objectIndex), len(objects), objects)
	}
	classOf := map[string]int{objects[0]: AgentClass}
	classes := make([]int, len(objects))
	for ii, name := range objects[1:] {
		class, found := classOf[name]
		if !found {
			class = len(classOf)
			classOf[name] = class
		}
		if class == AgentClass {
			return nil, errors.Wrapf(ErrConfiguration, "object %d is named %q like the agent", ii+1, name)
		}
		classes[ii+1] = class
	}
	return NewLayout(len(indexToObject), objectIndex, classes, 0)
}

// InputSize is the width of the observation vector.
func (l *Layout) InputSize() int { return l.inputSize }

// NumTasks is the number of tasks, 0 if the observation has no task column.
func (l *Layout) NumTasks() int { return l.numTasks }

// HasTaskColumn returns whether column 0 holds a task id.
func (l *Layout) HasTaskColumn() bool { return l.numTasks > 0 }

// NumClasses is the number of object classes, not counting the agent.
func (l *Layout) NumClasses() int { return l.numClasses }

// NumObjects is the number of object slots, not counting the agent.
func (l *Layout) NumObjects() int { return len(l.slots) - 1 }

// AgentSize is the number of features of the agent.
func (l *Layout) AgentSize() int { return l.slots[0].Width() }

// ObjectSize is the number of features of each object.
func (l *Layout) ObjectSize() int { return l.slots[1].Width() }

// AgentSlot returns the columns of the agent.
func (l *Layout) AgentSlot() Slot { return l.slots[0] }

// ObjectSlot returns the columns of object k, with k in 0..NumObjects-1.
func (l *Layout) ObjectSlot(k int) Slot { return l.slots[k+1] }

// ObjectClass returns the 0-based class index (label-1) of object k, with k in 0..NumObjects-1.
func (l *Layout) ObjectClass(k int) int { return l.classes[k+1] - 1 }

// CheckObservation panics with an error wrapping ErrShape if obs is not shaped `[batchSize, InputSize]`.
func (l *Layout) CheckObservation(obs *Node) {
	if obs.Rank() != 2 || obs.Shape().Dimensions[1] != l.inputSize {
		panic(errors.Wrapf(ErrShape, "expected observation shaped [batch_size, %d], got %s", l.inputSize, obs.Shape()))
	}
	if !obs.DType().IsFloat() {
		panic(errors.Wrapf(ErrShape, "observation must be a float, got %s", obs.Shape()))
	}
}

// CheckTaskIDs returns an error wrapping ErrShape if any row of the observations holds a task id
// outside 0..NumTasks-1. Task ids are truncated to integers, like they are in the graph.
// It is a no-op for layouts without a task column.
func (l *Layout) CheckTaskIDs(obs [][]float32) error {
	if !l.HasTaskColumn() {
		return nil
	}
	for row, values := range obs {
		if len(values) == 0 {
			continue
		}
		// Compared as floats: NaN, infinities and huge values don't convert to a meaningful int.
		if task := values[0]; !(task >= 0 && task < float32(l.numTasks)) {
			return errors.Wrapf(ErrShape, "row %d has task id %g, but there are only %d tasks", row, values[0], l.numTasks)
		}
	}
	return nil
}

// slice returns the columns of the slot for all rows of obs.
func (s Slot) slice(obs *Node) *Node {
	return Slice(obs, AxisRange(), AxisRange(s.Start, s.End))
}

// identityTable returns a constant one-hot table shaped [size, size]: row i is the one-hot vector of i.
func identityTable(g *Graph, dtype dtypes.DType, size int) *Node {
	return OneHot(Iota(g, shapes.Make(dtypes.Int32, size), 0), size, dtype)
}

// rowOf takes row i of table and broadcasts it to batchSize rows.
func rowOf(table *Node, i, batchSize int) *Node {
	row := Slice(table, AxisRange(i, i+1), AxisRange())
	return BroadcastToDims(row, batchSize, table.Shape().Dimensions[1])
}
