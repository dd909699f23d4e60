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
package vcf

import (
	"sort"

	"github.com/pkg/errors"
	gfileio "github.com/vertgenlab/gonomics/fileio"
	gvcf "github.com/vertgenlab/gonomics/vcf"
)

// Scanner reads VCF records from a file. The header is consumed by Open.
// gonomics reports malformed input by panicking; Scanner turns those panics
// into errors. Scanners are not threadsafe.
type Scanner struct {
	path   string
	r      *gfileio.EasyReader
	header Header
	n      int
	done   bool
	err    error
}

func recovered(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.Errorf("%v", r)
}

// Open opens the VCF at path, gzip-compressed if the name ends in ".gz", and
// reads its header.
func Open(path string) (s *Scanner, err error) {
	s = &Scanner{path: path}
	defer func() {
		if r := recover(); r != nil {
			if s.r != nil {
				_ = s.r.Close()
			}
			s, err = nil, errors.Wrapf(recovered(r), "vcf: open %s", path)
		}
	}()
	s.r = gfileio.EasyOpen(path)
	s.header.Samples = sampleList(gvcf.ReadHeader(s.r))
	return s, nil
}

// sampleList returns the header's sample names ordered by column.
func sampleList(h gvcf.Header) []string {
	names := make([]string, 0, len(h.Samples))
	for name := range h.Samples {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return h.Samples[names[i]] < h.Samples[names[j]] })
	return names
}

// Header returns the parsed header.
func (s *Scanner) Header() *Header { return &s.header }

// NumRecords returns the number of records read so far.
func (s *Scanner) NumRecords() int { return s.n }

// Scan reads the next record into rec. It returns false at the end of input
// or on error; check Err afterwards.
func (s *Scanner) Scan(rec *Record) (ok bool) {
	if s.done {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.done = true
			s.err = errors.Wrapf(recovered(r), "vcf: %s: record %d", s.path, s.n+1)
			ok = false
		}
	}()
	v, done := gvcf.NextVcf(s.r)
	if done {
		s.done = true
		return false
	}
	s.n++
	fill(rec, &v, len(s.header.Samples))
	return true
}

// Err returns the error that stopped the scanner, or nil at a clean end of
// input.
func (s *Scanner) Err() error { return s.err }

// Close releases the underlying file.
func (s *Scanner) Close() error {
	if err := s.r.Close(); err != nil {
		return errors.Wrapf(err, "vcf: close %s", s.path)
	}
	return nil
}

func fill(rec *Record, v *gvcf.Vcf, nSamples int) {
	rec.Chrom = v.Chr
	rec.Pos = v.Pos
	rec.ID = v.Id
	rec.Ref = v.Ref
	rec.Alt = rec.Alt[:0]
	for _, a := range v.Alt {
		if a != "." && a != "" {
			rec.Alt = append(rec.Alt, a)
		}
	}
	if cap(rec.Genotypes) < nSamples {
		rec.Genotypes = make([]Genotype, nSamples)
	}
	rec.Genotypes = rec.Genotypes[:nSamples]
	for i := range rec.Genotypes {
		rec.Genotypes[i] = Genotype{}
		if i >= len(v.Samples) {
			continue
		}
		sample := v.Samples[i]
		g := Genotype{Alleles: make([]int, len(sample.Alleles))}
		for j, a := range sample.Alleles {
			if a < 0 {
				g.Alleles[j] = MissingAllele
			} else {
				g.Alleles[j] = int(a)
			}
		}
		for _, p := range sample.Phase {
			g.Phased = g.Phased || p
		}
		rec.Genotypes[i] = g
	}
}
