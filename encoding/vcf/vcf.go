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

// Package vcf adapts gonomics VCF records to the subset the TPED converter
// needs: the fixed columns and the GT call of each sample. INFO and all
// other FORMAT sub-fields are ignored.
package vcf

// Header holds the sample names of a VCF.
type Header struct {
	// Samples lists the sample column names in file order.
	Samples []string
}

// MissingAllele marks an allele call of ".".
const MissingAllele = -1

// Genotype is one sample's GT call.
type Genotype struct {
	// Alleles holds allele indexes: 0 is the reference, i > 0 is Alt[i-1],
	// MissingAllele is an unknown call. Alleles is nil if the sample has no
	// GT sub-field.
	Alleles []int
	Phased  bool
}

// Missing reports whether the call is absent or any of its alleles is
// unknown.
func (g Genotype) Missing() bool {
	if len(g.Alleles) == 0 {
		return true
	}
	for _, a := range g.Alleles {
		if a < 0 {
			return true
		}
	}
	return false
}

// Record is one VCF data line.
type Record struct {
	Chrom string
	// Pos is the 1-based position of the first reference base.
	Pos int
	// ID is the ID column; "." when absent.
	ID  string
	Ref string
	// Alt lists the alternate alleles. It is empty when the ALT column is ".".
	Alt       []string
	Genotypes []Genotype
}

// IsSNP reports whether the record is a single-base substitution with one
// alternate allele.
func (r *Record) IsSNP() bool {
	if len(r.Ref) != 1 || len(r.Alt) != 1 || len(r.Alt[0]) != 1 {
		return false
	}
	return isBase(r.Ref[0]) && isBase(r.Alt[0][0])
}

func isBase(c byte) bool {
	switch c {
	case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		return true
	}
	return false
}

// Allele returns the allele sequence for index i: the reference for 0 and
// Alt[i-1] otherwise. ok is false if i is out of range.
func (r *Record) Allele(i int) (allele string, ok bool) {
	switch {
	case i == 0:
		return r.Ref, true
	case i > 0 && i <= len(r.Alt):
		return r.Alt[i-1], true
	}
	return "", false
}
