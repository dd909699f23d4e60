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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/askat/encoding/tped"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// countLines returns the number of newline characters in the file at path.
func countLines(ctx context.Context, path string) (n int, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var (
		r   = in.Reader(ctx)
		buf = make([]byte, 1<<20)
	)
	for {
		k, rerr := r.Read(buf)
		n += bytes.Count(buf[:k], []byte{'\n'})
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, errors.E(rerr, "read", path)
		}
	}
}

// batchLines returns the number of records per batch for a block of n
// records split among workers, in multiples of subBlock and never less than
// subBlock.
func batchLines(n, subBlock, workers int) int {
	lines := (n / (subBlock * workers)) * subBlock
	if lines < subBlock {
		return subBlock
	}
	return lines
}

func fixedBatchName(blockName string, num int) string {
	return fmt.Sprintf("%s.%d.askat", blockName, num)
}

// fixedBatches splits the block into consecutive numeric batch files of
// equal size (the last one may be shorter). Their concatenation is the
// block in numeric form.
func (p *Pipeline) fixedBatches(ctx context.Context, b *block) (batches []string, err error) {
	n, err := countLines(ctx, b.file)
	if err != nil {
		return nil, err
	}
	size := batchLines(n, p.opts.subBlockSize, p.opts.workers)
	if p.opts.verbose {
		log.Printf("block %s has %d records; up to %d records per batch", b.file, n, size)
	}

	in, err := file.Open(ctx, b.file)
	if err != nil {
		return nil, errors.E(err, "open", b.file)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var out *lineWriter
	defer func() {
		if out != nil {
			out.finish(ctx, &err)
		}
	}()
	sc := tped.NewScanner(in.Reader(ctx))
	for sc.Scan() {
		if out == nil || out.n >= size {
			if out != nil {
				closed := out
				out = nil
				if err := closed.close(ctx); err != nil {
					return nil, err
				}
			}
			path := fixedBatchName(b.name, len(batches)+1)
			if out, err = createLineWriter(ctx, path); err != nil {
				return nil, err
			}
			batches = append(batches, path)
			if p.opts.verbose {
				log.Printf("batch %d: line %d: creating %s", len(batches), sc.LineNum(), path)
			}
		}
		if err := out.writeLine(sc.Record().NumericLine()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, b.file)
	}
	return batches, nil
}
