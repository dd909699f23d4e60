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

// Package tfam reads and writes PLINK sample manifests (TFAM files) and
// reconciles them against the sample list of a variant source.
//
// Each manifest line describes one sample:
//
//   family-id  individual-id  paternal-id  maternal-id  sex  phenotype
//
// Sex is 1 (male), 2 (female) or anything else (unknown). Both the sex and
// phenotype columns are kept as they appear in the input. Phenotype is
// numeric; values <= 0 (or an absent column) mean missing, 1 means
// unaffected and 2 affected. Other values are passed through verbatim.
package tfam

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Sex is a sample's sex code.
type Sex int

const (
	SexUnknown Sex = iota
	SexMale
	SexFemale
)

// String returns the PLINK code for s.
func (s Sex) String() string {
	switch s {
	case SexMale:
		return "1"
	case SexFemale:
		return "2"
	}
	return "0"
}

// ParseSex maps a sex column to its code. Codes other than 1 and 2,
// including the common -9, are SexUnknown.
func ParseSex(s string) Sex {
	switch s {
	case "1":
		return SexMale
	case "2":
		return SexFemale
	}
	return SexUnknown
}

const (
	// MissingPhenotype is written when a sample has no phenotype column.
	MissingPhenotype = "0"
	// UnknownSex is written for a sample constructed without a sex column.
	UnknownSex = "0"
)

// Sample is one manifest line.
type Sample struct {
	FamilyID   string
	ID         string
	PaternalID string
	MaternalID string
	// Sex is the sex column as it appeared in the input.
	Sex string
	// Phenotype is the phenotype column as it appeared in the input.
	Phenotype string
}

// SexCode returns the decoded sex of s.
func (s Sample) SexCode() Sex { return ParseSex(s.Sex) }

// PhenotypeValue returns the numeric phenotype, or 0 (missing) if the
// column is absent or unparsable.
func (s Sample) PhenotypeValue() float64 {
	v, err := strconv.ParseFloat(s.Phenotype, 64)
	if err != nil {
		return 0
	}
	return v
}

// Affected reports whether the sample's phenotype is "affected" (2).
func (s Sample) Affected() bool { return s.PhenotypeValue() == 2 }

// Missing reports whether the sample's phenotype is missing.
func (s Sample) Missing() bool { return s.PhenotypeValue() <= 0 }

// Manifest is an ordered list of samples.
type Manifest []Sample

// IDs returns the individual ids of m, in order.
func (m Manifest) IDs() []string {
	ids := make([]string, len(m))
	for i, s := range m {
		ids[i] = s.ID
	}
	return ids
}

// Index returns a map from individual id to the first sample carrying it.
func (m Manifest) Index() map[string]Sample {
	idx := make(map[string]Sample, len(m))
	for _, s := range m {
		if _, ok := idx[s.ID]; !ok {
			idx[s.ID] = s
		}
	}
	return idx
}

// Write renders m as tab-separated TFAM text.
func (m Manifest) Write(w io.Writer) error {
	tw := tsv.NewWriter(w)
	for _, s := range m {
		sex, pheno := s.Sex, s.Phenotype
		if sex == "" {
			sex = UnknownSex
		}
		if pheno == "" {
			pheno = MissingPhenotype
		}
		tw.WriteString(s.FamilyID)
		tw.WriteString(s.ID)
		tw.WriteString(s.PaternalID)
		tw.WriteString(s.MaternalID)
		tw.WriteString(sex)
		tw.WriteString(pheno)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// String returns the TFAM text of m.
func (m Manifest) String() string {
	var b strings.Builder
	if err := m.Write(&b); err != nil {
		panic(err)
	}
	return b.String()
}

// Read parses TFAM text. Columns are separated by runs of whitespace; blank
// lines are ignored. A line must have at least the five identifying
// columns; the phenotype column is optional.
func Read(r io.Reader) (Manifest, error) {
	var (
		m       Manifest
		scanner = bufio.NewScanner(r)
		lineNum = 0
	)
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("tfam: line %d: expected at least 5 columns, got %d", lineNum, len(fields)))
		}
		s := Sample{
			FamilyID:   fields[0],
			ID:         fields[1],
			PaternalID: fields[2],
			MaternalID: fields[3],
			Sex:        fields[4],
		}
		if len(fields) > 5 {
			s.Phenotype = fields[5]
		}
		m = append(m, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "tfam: read")
	}
	return m, nil
}

// ReadPath reads the manifest stored at path.
func ReadPath(ctx context.Context, path string) (m Manifest, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open manifest", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	return Read(in.Reader(ctx))
}

// WritePath writes m to path, replacing any existing file.
func WritePath(ctx context.Context, path string, m Manifest) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create manifest", path)
	}
	defer func() {
		if err != nil {
			out.Discard(ctx)
			return
		}
		err = out.Close(ctx)
	}()
	return m.Write(out.Writer(ctx))
}
