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
package askat

import (
	"context"
	"fmt"
	"regexp"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/askat/encoding/tped"
	"github.com/grailbio/askat/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// activeInterval buffers the numeric lines of an interval that is still
// being hit by the record stream. Active intervals are ordered by the
// interval's position in the BED file.
type activeInterval struct {
	iv *interval.Interval
	// cycle counts how many times iv was finalized before this
	// accumulation started.
	cycle int
	lines []string
}

func (a *activeInterval) Compare(b llrb.Comparable) int {
	return a.iv.Ordinal - b.(*activeInterval).iv.Ordinal
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-\.]+`)

func intervalBatchName(blockName string, iv *interval.Interval, cycle int) string {
	name := fmt.Sprintf("%s.%s_%s", blockName, iv.Region(), unsafeNameChars.ReplaceAllString(iv.Name, "_"))
	if cycle > 0 {
		name = fmt.Sprintf("%s.%d", name, cycle)
	}
	return name + ".askat"
}

// intervalBatcher groups the records of one position-sorted block by the
// intervals that contain them. An interval is finalized as soon as a record
// misses it, so only intervals overlapping the current position are held in
// memory.
type intervalBatcher struct {
	index       *interval.Index
	blockName   string
	minVariants int
	verbose     bool
	debug       bool

	active llrb.Tree
	// cycles counts finalizations per interval ordinal.
	cycles  map[int]int
	batches []string
	// write stores the lines of a finalized interval.
	write func(path string, lines []string) error
}

func newIntervalBatcher(index *interval.Index, blockName string, minVariants int, write func(string, []string) error) *intervalBatcher {
	return &intervalBatcher{
		index:       index,
		blockName:   blockName,
		minVariants: minVariants,
		cycles:      map[int]int{},
		write:       write,
	}
}

func hit(hits []*interval.Interval, iv *interval.Interval) bool {
	for _, h := range hits {
		if h == iv {
			return true
		}
	}
	return false
}

// add routes one record to the intervals containing it, after finalizing
// every active interval it misses.
func (ib *intervalBatcher) add(rec *tped.Record) error {
	hits := ib.index.Query(rec.Chrom, rec.Pos)
	var missed []*activeInterval
	ib.active.Do(func(c llrb.Comparable) bool {
		if a := c.(*activeInterval); !hit(hits, a.iv) {
			missed = append(missed, a)
		}
		return false
	})
	for _, a := range missed {
		ib.active.Delete(a)
		if err := ib.finalize(a); err != nil {
			return err
		}
	}
	if len(hits) == 0 {
		if ib.debug {
			log.Debug.Printf("%s:%d does not hit any interval; ignored", rec.Chrom, rec.Pos)
		}
		return nil
	}
	line := rec.NumericLine()
	for _, iv := range hits {
		key := &activeInterval{iv: iv}
		a, ok := ib.active.Get(key).(*activeInterval)
		if !ok {
			a = key
			if a.cycle = ib.cycles[iv.Ordinal]; a.cycle > 0 {
				log.Printf("WARNING: interval %s (%s) is hit again at %s:%d after it was finalized; its records go to a separate batch",
					iv.Region(), iv.Name, rec.Chrom, rec.Pos)
			}
			ib.active.Insert(a)
		}
		a.lines = append(a.lines, line)
	}
	return nil
}

// finish finalizes every interval still active, in BED order.
func (ib *intervalBatcher) finish() error {
	var rest []*activeInterval
	ib.active.Do(func(c llrb.Comparable) bool {
		rest = append(rest, c.(*activeInterval))
		return false
	})
	for _, a := range rest {
		ib.active.Delete(a)
		if err := ib.finalize(a); err != nil {
			return err
		}
	}
	return nil
}

func (ib *intervalBatcher) finalize(a *activeInterval) error {
	ib.cycles[a.iv.Ordinal]++
	if len(a.lines) <= ib.minVariants {
		if ib.verbose {
			log.Printf("interval %s (%s) has only %d variants; skipped", a.iv.Region(), a.iv.Name, len(a.lines))
		}
		return nil
	}
	path := intervalBatchName(ib.blockName, a.iv, a.cycle)
	if ib.verbose {
		log.Printf("saving %d lines of interval %s (%s) to %s", len(a.lines), a.iv.Region(), a.iv.Name, path)
	}
	if err := ib.write(path, a.lines); err != nil {
		return err
	}
	ib.batches = append(ib.batches, path)
	return nil
}

func writeLines(ctx context.Context, path string, lines []string) (err error) {
	w, err := createLineWriter(ctx, path)
	if err != nil {
		return err
	}
	defer w.finish(ctx, &err)
	for _, line := range lines {
		if err = w.writeLine(line); err != nil {
			return err
		}
	}
	return nil
}

// intervalBatches writes one numeric batch file per interval with more than
// the minimum number of variants.
func (p *Pipeline) intervalBatches(ctx context.Context, b *block) (batches []string, err error) {
	in, err := file.Open(ctx, b.file)
	if err != nil {
		return nil, errors.E(err, "open", b.file)
	}
	defer file.CloseAndReport(ctx, in, &err)

	ib := newIntervalBatcher(p.index, b.name, p.opts.minVariants, func(path string, lines []string) error {
		return writeLines(ctx, path, lines)
	})
	ib.verbose, ib.debug = p.opts.verbose, p.opts.debug
	sc := tped.NewScanner(in.Reader(ctx))
	for sc.Scan() {
		if err := ib.add(sc.Record()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, b.file)
	}
	if err := ib.finish(); err != nil {
		return nil, err
	}
	return ib.batches, nil
}
