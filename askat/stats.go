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
	"strconv"

	"github.com/grailbio/askat/encoding/converter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// RunStats summarizes one pipeline run.
type RunStats struct {
	// Conversion is set if the genotype table was created from a VCF.
	Conversion *converter.Stats

	FilteredMaf     int
	Remaining       int
	Blocks          int
	Batches         int
	Jobs            int
	FailedJobs      int
	ResultLines     int
	WarningLines    int
	KinshipComputed int
	KinshipReused   int
}

type statsField struct {
	name  string
	value int
}

func (s RunStats) fields() []statsField {
	var f []statsField
	if c := s.Conversion; c != nil {
		f = append(f,
			statsField{"vcf_lines_read", c.LinesRead},
			statsField{"vcf_lines_written", c.LinesWritten},
			statsField{"vcf_skipped_non_biallelic", c.SkippedNonBiallelic},
			statsField{"vcf_skipped_non_snp", c.SkippedNonSNP},
			statsField{"vcf_skipped_missing", c.SkippedMissing})
	}
	return append(f,
		statsField{"filtered_maf", s.FilteredMaf},
		statsField{"remaining", s.Remaining},
		statsField{"blocks", s.Blocks},
		statsField{"batches", s.Batches},
		statsField{"jobs", s.Jobs},
		statsField{"failed_jobs", s.FailedJobs},
		statsField{"result_lines", s.ResultLines},
		statsField{"warning_lines", s.WarningLines},
		statsField{"kinship_computed", s.KinshipComputed},
		statsField{"kinship_reused", s.KinshipReused})
}

func (s RunStats) String() string {
	return fmt.Sprintf("filtered out (MAF): %d, remaining: %d, blocks: %d, batches: %d, jobs: %d (%d failed), results: %d, warnings: %d",
		s.FilteredMaf, s.Remaining, s.Blocks, s.Batches, s.Jobs, s.FailedJobs, s.ResultLines, s.WarningLines)
}

// Log prints the summary.
func (s RunStats) Log() {
	if s.Conversion != nil {
		log.Printf("VCF conversion: %s", s.Conversion)
	}
	log.Printf("done. %s", s)
}

// WriteSummary writes the summary as a two-column (name, value) TSV.
func (s RunStats) WriteSummary(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create summary", path)
	}
	defer func() {
		if err != nil {
			out.Discard(ctx)
			return
		}
		err = out.Close(ctx)
	}()
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("#name")
	w.WriteString("value")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, f := range s.fields() {
		w.WriteString(f.name)
		w.WriteString(strconv.Itoa(f.value))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
