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
	"strings"

	"github.com/grailbio/askat/encoding/tped"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// block is one partition of the genotype table, written to its own TPED
// file and analyzed with a single kinship matrix.
type block struct {
	file string
	// name is file without its ".tped" extension. Every derived file name
	// starts with it.
	name        string
	kinshipFile string
	// toDelete lists the intermediate files removed once the block is done.
	toDelete []string
}

func newBlock(path string) *block {
	name := strings.TrimSuffix(path, ".tped")
	return &block{
		file:        path,
		name:        name,
		kinshipFile: name + ".kinship.RData",
	}
}

func blockFileName(genotype, chrom string, pos int) string {
	return fmt.Sprintf("%s.block.%s_%d.tped", genotype, chrom, pos)
}

// lineWriter writes newline-terminated lines to a file.
type lineWriter struct {
	path string
	f    file.File
	w    *tsv.Writer
	n    int
}

func createLineWriter(ctx context.Context, path string) (*lineWriter, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	return &lineWriter{path: path, f: f, w: tsv.NewWriter(f.Writer(ctx))}, nil
}

func (w *lineWriter) writeLine(line string) error {
	w.w.WriteString(line)
	w.n++
	return w.w.EndLine()
}

// discard drops everything written so far; nothing is left at w.path.
func (w *lineWriter) discard(ctx context.Context) {
	w.f.Discard(ctx)
}

// finish closes w if err is nil and discards it otherwise, so that a failed
// run never publishes a truncated file.
func (w *lineWriter) finish(ctx context.Context, err *error) {
	if *err != nil {
		w.discard(ctx)
		return
	}
	*err = w.close(ctx)
}

func (w *lineWriter) close(ctx context.Context) error {
	if err := w.w.Flush(); err != nil {
		w.discard(ctx)
		return errors.E(err, "write", w.path)
	}
	if err := w.f.Close(ctx); err != nil {
		return errors.E(err, "write", w.path)
	}
	return nil
}

// partition streams the genotype table, drops records above the MAF ceiling
// and splits the rest into blocks per the kinship method. Each block is
// processed as soon as it is closed.
func (p *Pipeline) partition(ctx context.Context) (err error) {
	in, err := file.Open(ctx, p.tpedFile)
	if err != nil {
		return errors.E(err, "open", p.tpedFile)
	}
	defer file.CloseAndReport(ctx, in, &err)

	var (
		sc    = tped.NewScanner(in.Reader(ctx))
		order tped.OrderChecker
		out   *lineWriter
		chrom string
	)
	defer func() {
		if out != nil {
			out.finish(ctx, &err)
		}
	}()
	for sc.Scan() {
		rec := sc.Record()
		if err := order.Check(rec); err != nil {
			return errors.E(err, p.tpedFile)
		}
		if rec.MAF() > p.opts.maxMaf {
			p.stats.FilteredMaf++
			continue
		}
		if out == nil ||
			(p.opts.kinship != KinshipAll && rec.Chrom != chrom) ||
			(p.opts.kinship == KinshipBlock && out.n >= p.opts.blockSize) {
			if out != nil {
				closed := out
				out = nil
				if err := closed.close(ctx); err != nil {
					return err
				}
				if p.opts.verbose {
					log.Printf("finished block %s: %d records", closed.path, closed.n)
				}
				if err := p.processBlock(ctx, closed.path); err != nil {
					return err
				}
				if p.stopped {
					return nil
				}
			}
			path := blockFileName(p.genotype, rec.Chrom, rec.Pos)
			if p.opts.kinship == KinshipAll {
				exists, err := Exists(ctx, path)
				if err != nil {
					return err
				}
				if exists {
					log.Printf("block file %s already exists; reusing it", path)
					return p.processBlock(ctx, path)
				}
			}
			if p.opts.verbose {
				log.Printf("creating block %s", path)
			}
			if out, err = createLineWriter(ctx, path); err != nil {
				return err
			}
			chrom = rec.Chrom
		}
		if err := out.writeLine(rec.Line()); err != nil {
			return errors.E(err, out.path)
		}
		p.stats.Remaining++
	}
	if err := sc.Err(); err != nil {
		return errors.E(err, p.tpedFile)
	}
	if out != nil {
		closed := out
		out = nil
		if err := closed.close(ctx); err != nil {
			return err
		}
		if closed.n > 0 {
			return p.processBlock(ctx, closed.path)
		}
	}
	return nil
}
