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

// Package askat prepares a genotype table for the ASKAT rare-variant
// association test and drives the external R scripts that run it.
//
// A run reads <genotype>.tped and <genotype>.tfam (creating the TPED from
// <genotype>.vcf or <genotype>.vcf.gz when needed), drops variants above the
// MAF ceiling and splits the rest into blocks. Each block gets one kinship
// matrix, is split into numeric batch files (fixed-size, or one per BED
// interval), and every batch is analyzed by the askat.r script on a bounded
// pool of worker processes. Only result and warning lines of the analysis
// output are kept.
package askat

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/askat/encoding/converter"
	"github.com/grailbio/askat/encoding/tfam"
	"github.com/grailbio/askat/encoding/tped"
	"github.com/grailbio/askat/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Pipeline runs the analysis over one genotype data set.
type Pipeline struct {
	opts     askatOpts
	programs Programs
	runner   Runner
	store    *ArtifactStore
	sink     *resultSink
	index    *interval.Index

	genotype string
	tpedFile string
	tfamFile string
	stats    RunStats
	// stopped is set once the single debug job has run.
	stopped bool
}

// New returns a Pipeline that runs programs through runner and writes
// result lines to out.
func New(raw *Opts, programs Programs, runner Runner, out io.Writer) (*Pipeline, error) {
	opts, err := newAskatOpts(raw)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		opts:     opts,
		programs: programs,
		runner:   runner,
		store:    NewArtifactStore(),
		sink:     &resultSink{w: out},
	}, nil
}

// Run analyzes the data set whose files are named <genotype>.tped,
// <genotype>.tfam (and optionally <genotype>.vcf[.gz]).
func (p *Pipeline) Run(ctx context.Context, genotype string) (RunStats, error) {
	p.stats = RunStats{}
	p.stopped = false
	p.genotype = genotype
	p.tpedFile = genotype + ".tped"
	p.tfamFile = genotype + ".tfam"

	p.index = nil
	if p.opts.bedPath != "" {
		intervals, err := interval.LoadBED(ctx, p.opts.bedPath)
		if err != nil {
			return p.stats, err
		}
		if p.index, err = interval.NewIndex(intervals); err != nil {
			return p.stats, err
		}
	}
	if err := p.prepareInput(ctx); err != nil {
		return p.stats, err
	}
	if p.opts.verbose {
		log.Printf("creating blocks (kinship method %s) and running the analysis on each block", p.opts.kinship)
	}
	if err := p.partition(ctx); err != nil {
		return p.stats, err
	}
	p.stats.Log()
	if p.opts.summaryPath != "" {
		if err := p.stats.WriteSummary(ctx, p.opts.summaryPath); err != nil {
			return p.stats, err
		}
	}
	p.sink.mu.Lock()
	err := p.sink.err
	p.sink.mu.Unlock()
	if err != nil {
		return p.stats, errors.E(err, "write results")
	}
	return p.stats, nil
}

// prepareInput makes sure the genotype table and manifest exist, converting
// a VCF if the table is missing, and checks that they describe the same
// number of samples.
func (p *Pipeline) prepareInput(ctx context.Context) error {
	exists, err := Exists(ctx, p.tfamFile)
	if err != nil {
		return err
	}
	if !exists {
		return errors.E(errors.NotExist, "cannot read manifest", p.tfamFile)
	}
	if exists, err = Exists(ctx, p.tpedFile); err != nil {
		return err
	}
	if !exists {
		if err := p.convertVCF(ctx); err != nil {
			return err
		}
	}
	m, err := tfam.ReadPath(ctx, p.tfamFile)
	if err != nil {
		return err
	}
	n, ok, err := firstLineSamples(ctx, p.tpedFile)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("WARNING: genotype table %s is empty", p.tpedFile)
		return nil
	}
	if n != len(m) {
		return errors.E(errors.Invalid, fmt.Sprintf(
			"number of samples in TPED and TFAM files do not match: %d samples in %s, %d samples in %s",
			len(m), p.tfamFile, n, p.tpedFile))
	}
	return nil
}

func (p *Pipeline) convertVCF(ctx context.Context) error {
	for _, vcfPath := range []string{p.genotype + ".vcf", p.genotype + ".vcf.gz"} {
		exists, err := Exists(ctx, vcfPath)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if p.opts.verbose {
			log.Printf("converting %s to %s", vcfPath, p.tpedFile)
		}
		stats, err := converter.ConvertVCFToTPED(ctx, vcfPath, p.tpedFile, p.tfamFile, p.opts.convert)
		if err != nil {
			return err
		}
		p.stats.Conversion = &stats
		return nil
	}
	return errors.E(errors.NotExist, "cannot read genotype table", p.tpedFile)
}

// firstLineSamples returns the number of samples of the first record of a
// TPED file. ok is false if the file has no record.
func firstLineSamples(ctx context.Context, path string) (n int, ok bool, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, false, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := tped.NewScanner(in.Reader(ctx))
	if sc.Scan() {
		return sc.Record().NumSamples(), true, nil
	}
	if err := sc.Err(); err != nil {
		return 0, false, errors.E(err, path)
	}
	return 0, false, nil
}
