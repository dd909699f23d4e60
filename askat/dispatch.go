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
	"io"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// resultSink serializes result lines from concurrent jobs onto one writer.
type resultSink struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func (s *resultSink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		_, s.err = io.WriteString(s.w, line+"\n")
	}
}

// processBlock computes the block's kinship matrix, splits it into batches,
// runs the analysis over them and removes the intermediate files.
func (p *Pipeline) processBlock(ctx context.Context, path string) error {
	b := newBlock(path)
	p.stats.Blocks++
	if p.opts.verbose {
		log.Printf("starting block %s", b.name)
	}
	if err := p.kinship(ctx, b); err != nil {
		return err
	}
	var (
		batches []string
		err     error
	)
	if p.index != nil {
		batches, err = p.intervalBatches(ctx, b)
	} else {
		batches, err = p.fixedBatches(ctx, b)
	}
	if err != nil {
		return err
	}
	p.stats.Batches += len(batches)
	b.toDelete = append(b.toDelete, batches...)
	jobs := p.analysisJobs(b, batches)
	p.dispatch(jobs)
	if p.opts.debugOnce && len(jobs) > 0 {
		log.Printf("debug-once: stopping after %s", jobs[0].BatchFiles[0])
		p.stopped = true
	}
	p.cleanup(ctx, b)
	if p.opts.verbose {
		log.Printf("finished block %s", b.name)
	}
	return nil
}

// kinship makes sure the block's kinship matrix exists, computing it with
// the kinship script if needed. A failing script is fatal.
func (p *Pipeline) kinship(ctx context.Context, b *block) error {
	job := KinshipJob{
		Rscript:      p.programs.Rscript,
		Script:       p.opts.rPath + ScriptKinship,
		BlockFile:    b.file,
		ManifestFile: p.tfamFile,
		GenabelGen:   b.name + ".genabel.gen",
		GenabelPhen:  b.name + ".genabel.phen",
		KinshipFile:  b.kinshipFile,
		SimFile:      b.name + ".sim",
		PhenoFile:    b.name + ".pheno.txt",
		Fastlmm:      p.programs.Fastlmm,
	}
	computed, err := p.store.Ensure(ctx, b.kinshipFile, func(staging string) error {
		j := job
		j.KinshipFile = staging
		cmd, err := j.Command()
		if err != nil {
			return err
		}
		if p.opts.debug {
			log.Printf("executing: %s", cmd)
		}
		code, err := p.runner.Run(cmd, p.passthrough(cmd), p.passthrough(cmd))
		if err != nil {
			return errors.E(err, "run kinship script")
		}
		if code != 0 {
			return errors.E(errors.Unavailable, fmt.Sprintf("kinship script failed with exit status %d; command line: %s", code, cmd))
		}
		return nil
	})
	if err != nil {
		return errors.E(err, "kinship for block", b.file)
	}
	if computed {
		p.stats.KinshipComputed++
		b.toDelete = append(b.toDelete, job.SupportFiles()...)
	} else {
		p.stats.KinshipReused++
		if p.opts.verbose {
			log.Printf("kinship file %s already exists; nothing done", b.kinshipFile)
		}
	}
	return nil
}

// passthrough returns a line callback that logs output only in debug mode.
func (p *Pipeline) passthrough(cmd Command) func(string) {
	if !p.opts.debug {
		return nil
	}
	return func(line string) { log.Printf("%s: %s", cmd.Name, line) }
}

// analysisJobs builds the analysis jobs of a block: one per batch in fixed
// mode, one per group of ceil(len(batches)/workers) batches in interval mode.
// In single-shot debug mode only the first job of the run is returned.
func (p *Pipeline) analysisJobs(b *block, batches []string) []AnalysisJob {
	var groups [][]string
	if p.index == nil {
		for _, f := range batches {
			groups = append(groups, []string{f})
		}
	} else if len(batches) > 0 {
		perWorker := (len(batches) + p.opts.workers - 1) / p.opts.workers
		if p.opts.verbose {
			log.Printf("using %d batch files per worker", perWorker)
		}
		for i := 0; i < len(batches); i += perWorker {
			end := i + perWorker
			if end > len(batches) {
				end = len(batches)
			}
			groups = append(groups, batches[i:end])
		}
	}
	if p.opts.debugOnce {
		if p.stopped {
			return nil
		}
		if len(groups) > 1 {
			groups = groups[:1]
		}
	}
	jobs := make([]AnalysisJob, len(groups))
	for i, g := range groups {
		jobs[i] = AnalysisJob{
			Rscript:      p.programs.Rscript,
			Script:       p.opts.rPath + ScriptAskat,
			BatchFiles:   g,
			ManifestFile: p.tfamFile,
			KinshipFile:  b.kinshipFile,
			SubBlockSize: p.opts.subBlockSize,
			PAccuracy:    p.opts.pAccuracy,
			Debug:        p.opts.debugOnce,
		}
	}
	return jobs
}

// dispatch runs jobs on at most opts.workers concurrent processes. Result
// and warning lines go to the result sink. A failing job is logged and
// yields no results; the other jobs are unaffected.
func (p *Pipeline) dispatch(jobs []AnalysisJob) {
	var results, warnings, failed int64
	err := traverse.Limit(p.opts.workers).Each(len(jobs), func(i int) error {
		cmd, err := jobs[i].Command()
		if err != nil {
			log.Error.Printf("analysis job %d: %v", i, err)
			atomic.AddInt64(&failed, 1)
			return nil
		}
		keep := func(line string) bool {
			switch ClassifyLine(line) {
			case LineResult:
				atomic.AddInt64(&results, 1)
			case LineWarning:
				atomic.AddInt64(&warnings, 1)
			default:
				return false
			}
			p.sink.writeLine(line)
			return true
		}
		stdout := func(line string) {
			if !keep(line) && p.opts.debug {
				log.Printf("%s: %s", cmd.Name, line)
			}
		}
		stderr := func(line string) {
			if p.opts.debug {
				log.Printf("%s: %s", cmd.Name, line)
				return
			}
			keep(line)
		}
		if p.opts.verbose {
			log.Printf("job %d/%d: %s", i+1, len(jobs), cmd.Name)
		}
		code, err := p.runner.Run(cmd, stdout, stderr)
		if err != nil || code != 0 {
			atomic.AddInt64(&failed, 1)
			log.Error.Printf("%s: exit status %d: %v", cmd.Name, code, err)
		}
		return nil
	})
	if err != nil {
		log.Error.Printf("dispatch: %v", err)
	}
	p.stats.Jobs += len(jobs)
	p.stats.FailedJobs += int(failed)
	p.stats.ResultLines += int(results)
	p.stats.WarningLines += int(warnings)
}

// cleanup removes the block's intermediate files unless in debug mode.
// Failures are logged only.
func (p *Pipeline) cleanup(ctx context.Context, b *block) {
	if p.opts.debug {
		log.Printf("debug mode: intermediate files of %s kept", b.name)
		return
	}
	for _, path := range b.toDelete {
		if p.opts.verbose {
			log.Printf("deleting %s", path)
		}
		if err := file.Remove(ctx, path); err != nil {
			log.Error.Printf("cannot delete %s: %v", path, err)
		}
	}
}
