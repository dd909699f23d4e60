// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package interval

import (
	"fmt"
	"sort"

	biointerval "github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
)

// entry adapts an *Interval to biogo's integer interval tree. Tree ranges
// are half-open: [Start, End+1).
type entry struct {
	iv *Interval
}

func (e entry) Overlap(b biointerval.IntRange) bool {
	return e.iv.Start < b.End && b.Start <= e.iv.End
}

func (e entry) ID() uintptr { return uintptr(e.iv.Ordinal) }

func (e entry) Range() biointerval.IntRange {
	return biointerval.IntRange{Start: e.iv.Start, End: e.iv.End + 1}
}

// point is a single-position query against an IntTree.
type point int

func (p point) Overlap(b biointerval.IntRange) bool {
	return b.Start <= int(p) && int(p) < b.End
}

// Index answers "which intervals contain this position" queries over a set
// of possibly overlapping intervals, with one tree per chromosome.
type Index struct {
	trees map[string]*biointerval.IntTree
	n     int
}

// NewIndex builds an Index over intervals. Intervals must have distinct
// ordinals.
func NewIndex(intervals []*Interval) (*Index, error) {
	x := &Index{trees: map[string]*biointerval.IntTree{}}
	for _, iv := range intervals {
		t := x.trees[iv.Chrom]
		if t == nil {
			t = &biointerval.IntTree{}
			x.trees[iv.Chrom] = t
		}
		if err := t.Insert(entry{iv}, true); err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("index interval %s (%s)", iv.Region(), iv.Name))
		}
		x.n++
	}
	for _, t := range x.trees {
		t.AdjustRanges()
	}
	return x, nil
}

// Len returns the number of indexed intervals.
func (x *Index) Len() int { return x.n }

// Query returns the intervals on chrom that contain pos, sorted by ordinal.
func (x *Index) Query(chrom string, pos int) []*Interval {
	t := x.trees[chrom]
	if t == nil {
		return nil
	}
	hits := t.Get(point(pos))
	if len(hits) == 0 {
		return nil
	}
	result := make([]*Interval, len(hits))
	for i, h := range hits {
		result[i] = h.(entry).iv
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ordinal < result[j].Ordinal })
	return result
}
