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

// Package tped parses PLINK transposed genotype (TPED) lines and derives the
// per-variant statistics used to filter and re-encode them.
//
// A TPED line holds four leading columns (chromosome, variant id, genetic
// distance, base-pair position) followed by two allele columns per sample.
// "0" denotes a missing allele.
package tped

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// NumLeadingFields is the number of columns preceding the genotype columns.
const NumLeadingFields = 4

// MissingAllele is the allele symbol PLINK uses for an unknown call.
const MissingAllele = '0'

// Bases lists the nucleotides counted when computing allele frequencies, in
// the order used to break ties between equally frequent alleles.
var Bases = [4]byte{'A', 'C', 'G', 'T'}

// Record is a parsed TPED line.
type Record struct {
	Chrom       string
	ID          string
	GeneticDist string
	Pos         int
	// Alleles holds the first character of each allele column, upper-cased.
	// len(Alleles) is always even: two alleles per sample.
	Alleles []byte
	// Counts holds the number of occurrences of each of Bases.
	Counts [4]int

	line string
}

// Parse parses one TPED line. The line is split on runs of whitespace.
// Lines with fewer than NumLeadingFields columns, an odd total number of
// columns, or a non-integer position are rejected.
func Parse(line string) (*Record, error) {
	fields := strings.Fields(line)
	if len(fields) < NumLeadingFields {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("tped: expected at least 4 columns, got %d in line: %s", len(fields), abbreviate(line)))
	}
	if len(fields)%2 != 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("tped: odd number of columns (%d) in line: %s", len(fields), abbreviate(line)))
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "tped: bad position in line: "+abbreviate(line))
	}
	r := &Record{
		Chrom:       fields[0],
		ID:          fields[1],
		GeneticDist: fields[2],
		Pos:         pos,
		Alleles:     make([]byte, len(fields)-NumLeadingFields),
		line:        line,
	}
	for i, f := range fields[NumLeadingFields:] {
		c := upper(f[0])
		r.Alleles[i] = c
		switch c {
		case 'A':
			r.Counts[0]++
		case 'C':
			r.Counts[1]++
		case 'G':
			r.Counts[2]++
		case 'T':
			r.Counts[3]++
		}
	}
	return r, nil
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func abbreviate(line string) string {
	const max = 80
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}

// Line returns the line the record was parsed from.
func (r *Record) Line() string { return r.line }

// NumSamples returns the number of samples (allele pairs) in the record.
func (r *Record) NumSamples() int { return len(r.Alleles) / 2 }

// MAF returns the minor allele frequency: the smallest count/total over the
// bases that occur at least once. A record with no counted bases, or a
// monomorphic one, has MAF 1.
func (r *Record) MAF() float64 {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	maf := 1.0
	if total == 0 {
		return maf
	}
	for _, c := range r.Counts {
		if c <= 0 {
			continue
		}
		if f := float64(c) / float64(total); f < maf {
			maf = f
		}
	}
	return maf
}

// MajorAllele returns the most frequent base. Ties go to the first base in
// Bases order; 'A' is returned when no base was observed.
func (r *Record) MajorAllele() byte {
	best := 0
	for i := 1; i < len(r.Counts); i++ {
		if r.Counts[best] < r.Counts[i] {
			best = i
		}
	}
	return Bases[best]
}

// Dosages returns, per sample, the number of alleles (0, 1 or 2) that
// differ from the major allele. Missing alleles count as differing.
func (r *Record) Dosages() []int {
	major := r.MajorAllele()
	d := make([]int, r.NumSamples())
	for i := range d {
		if r.Alleles[2*i] != major {
			d[i]++
		}
		if r.Alleles[2*i+1] != major {
			d[i]++
		}
	}
	return d
}

// NumericLine renders the record with the four leading columns unchanged
// and one dosage column per sample, tab-separated.
func (r *Record) NumericLine() string {
	var b strings.Builder
	b.Grow(len(r.Chrom) + len(r.ID) + len(r.GeneticDist) + 16 + 2*r.NumSamples())
	b.WriteString(r.Chrom)
	b.WriteByte('\t')
	b.WriteString(r.ID)
	b.WriteByte('\t')
	b.WriteString(r.GeneticDist)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(r.Pos))
	for _, d := range r.Dosages() {
		b.WriteByte('\t')
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}
