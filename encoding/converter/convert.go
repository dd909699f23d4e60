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
package converter

// Utility for converting VCF to PLINK TPED.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/askat/encoding/tfam"
	"github.com/grailbio/askat/encoding/vcf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"v.io/x/lib/vlog"
)

// MissingPolicy selects how a line with at least one missing (or malformed)
// genotype among the retained samples is written.
type MissingPolicy int

const (
	// OmitLine drops the whole line.
	OmitLine MissingPolicy = iota
	// EncodeMissing writes "0 0" for the missing sample.
	EncodeMissing
	// EncodeReference writes the reference allele twice for the missing
	// sample.
	EncodeReference
)

var missingPolicyNames = map[MissingPolicy]string{
	OmitLine:        "omit",
	EncodeMissing:   "missing",
	EncodeReference: "reference",
}

func (p MissingPolicy) String() string {
	if s, ok := missingPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("MissingPolicy(%d)", int(p))
}

// ParseMissingPolicy parses one of "omit", "missing" or "reference".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	for p, name := range missingPolicyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown missing-genotype policy %q; want omit, missing or reference", s))
}

// Opts controls VCF to TPED conversion.
type Opts struct {
	// OnlySNP drops every variant that is not a single-base substitution.
	// Otherwise the reference allele is written as "A" and the alternate
	// allele as "T".
	OnlySNP bool
	// Missing selects the missing-genotype policy.
	Missing MissingPolicy
}

// Stats counts what happened to the lines of a conversion.
type Stats struct {
	LinesRead           int
	LinesWritten        int
	SkippedNonBiallelic int
	SkippedNonSNP       int
	SkippedMissing      int
}

func (s Stats) String() string {
	return fmt.Sprintf("read %d, written %d, skipped: %d non-biallelic, %d non-SNP, %d with missing genotypes",
		s.LinesRead, s.LinesWritten, s.SkippedNonBiallelic, s.SkippedNonSNP, s.SkippedMissing)
}

const (
	nonSNPRef = "A"
	nonSNPAlt = "T"
	missing   = "0"
)

// alleleSymbol maps allele index a of rec to the symbol written to TPED.
func alleleSymbol(rec *vcf.Record, snp bool, a int) (string, bool) {
	allele, ok := rec.Allele(a)
	if !ok {
		return "", false
	}
	if !snp {
		if a == 0 {
			return nonSNPRef, true
		}
		return nonSNPAlt, true
	}
	return strings.ToUpper(allele), true
}

// convertRecord renders the genotype columns of rec for the samples selected
// by mask. It returns hadMissing=true if any retained sample's call is
// missing or is not exactly two known alleles.
func convertRecord(rec *vcf.Record, mask []bool, opts Opts, cols []string) (out []string, hadMissing bool) {
	snp := rec.IsSNP()
	ref := nonSNPRef
	if snp {
		ref = strings.ToUpper(rec.Ref)
	}
	out = cols[:0]
	for i, g := range rec.Genotypes {
		if i < len(mask) && !mask[i] {
			continue
		}
		var a0, a1 string
		ok := !g.Missing() && len(g.Alleles) == 2
		if ok {
			var ok0, ok1 bool
			a0, ok0 = alleleSymbol(rec, snp, g.Alleles[0])
			a1, ok1 = alleleSymbol(rec, snp, g.Alleles[1])
			ok = ok0 && ok1
		}
		if !ok {
			hadMissing = true
			if opts.Missing == EncodeReference {
				a0, a1 = ref, ref
			} else {
				a0, a1 = missing, missing
			}
		}
		out = append(out, a0, a1)
	}
	return out, hadMissing
}

func recordID(rec *vcf.Record, n int) string {
	if rec.ID != "" && rec.ID != "." {
		return rec.ID
	}
	return fmt.Sprintf("id_%d", n)
}

// Convert reads VCF records from sc and writes TPED lines to w. mask has one
// entry per VCF sample; unmasked samples are dropped from every line. A nil
// mask keeps all samples.
func Convert(sc *vcf.Scanner, mask []bool, w io.Writer, opts Opts) (Stats, error) {
	var (
		stats Stats
		rec   vcf.Record
		cols  []string
		bw    = bufio.NewWriter(w)
	)
	for sc.Scan(&rec) {
		stats.LinesRead++
		if len(rec.Alt) != 1 {
			stats.SkippedNonBiallelic++
			continue
		}
		if opts.OnlySNP && !rec.IsSNP() {
			stats.SkippedNonSNP++
			continue
		}
		var hadMissing bool
		cols, hadMissing = convertRecord(&rec, mask, opts, cols)
		if hadMissing && opts.Missing == OmitLine {
			stats.SkippedMissing++
			continue
		}
		bw.WriteString(rec.Chrom)
		bw.WriteByte('\t')
		bw.WriteString(recordID(&rec, stats.LinesRead))
		bw.WriteString("\t0\t")
		fmt.Fprint(bw, rec.Pos)
		for _, c := range cols {
			bw.WriteByte('\t')
			bw.WriteString(c)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stats, errors.E(err, "write tped")
		}
		stats.LinesWritten++
		if stats.LinesRead%100000 == 0 {
			vlog.VI(1).Infof("vcf2tped: %s", stats)
		}
	}
	if err := sc.Err(); err != nil {
		return stats, errors.E(errors.Invalid, err)
	}
	if err := bw.Flush(); err != nil {
		return stats, errors.E(err, "write tped")
	}
	return stats, nil
}

// ConvertVCFToTPED converts the VCF at vcfPath (optionally gzipped) to a TPED
// at tpedPath. The manifest at tfamPath is reconciled against the VCF
// samples first: the TPED holds exactly the samples that survive
// reconciliation, in VCF order, and the manifest is rewritten (after a
// backup) if it changed.
func ConvertVCFToTPED(ctx context.Context, vcfPath, tpedPath, tfamPath string, opts Opts) (stats Stats, err error) {
	sc, err := vcf.Open(vcfPath)
	if err != nil {
		return stats, errors.E(errors.Invalid, err)
	}
	defer func() {
		if e := sc.Close(); e != nil && err == nil {
			err = errors.E(e)
		}
	}()
	rc, err := tfam.ReconcilePath(ctx, tfamPath, sc.Header().Samples)
	if err != nil {
		return stats, err
	}
	out, err := file.Create(ctx, tpedPath)
	if err != nil {
		return stats, errors.E(err, "create tped", tpedPath)
	}
	defer func() {
		if err != nil {
			out.Discard(ctx)
			return
		}
		err = out.Close(ctx)
	}()
	if stats, err = Convert(sc, rc.Mask, out.Writer(ctx), opts); err != nil {
		return stats, errors.E(err, vcfPath)
	}
	log.Printf("vcf2tped %s -> %s: %s", vcfPath, tpedPath, stats)
	return stats, nil
}
