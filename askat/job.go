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
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Command is a fully resolved external program invocation.
type Command struct {
	// Name identifies the command in logs.
	Name string
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// KinshipJob computes the kinship matrix of one block with the kinship R
// script. The script writes KinshipFile plus four support files.
type KinshipJob struct {
	Rscript      string
	Script       string
	BlockFile    string
	ManifestFile string
	GenabelGen   string
	GenabelPhen  string
	KinshipFile  string
	SimFile      string
	PhenoFile    string
	Fastlmm      string
}

// SupportFiles returns the intermediate files the job leaves behind besides
// the kinship matrix.
func (j KinshipJob) SupportFiles() []string {
	return []string{j.GenabelGen, j.GenabelPhen, j.SimFile, j.PhenoFile}
}

func requireFields(job string, fields ...string) error {
	for i := 0; i < len(fields); i += 2 {
		if fields[i+1] == "" {
			return errors.E(errors.Invalid, fmt.Sprintf("%s: %s is not set", job, fields[i]))
		}
	}
	return nil
}

// Validate checks that every parameter is set.
func (j KinshipJob) Validate() error {
	return requireFields("kinship job",
		"Rscript", j.Rscript,
		"Script", j.Script,
		"BlockFile", j.BlockFile,
		"ManifestFile", j.ManifestFile,
		"GenabelGen", j.GenabelGen,
		"GenabelPhen", j.GenabelPhen,
		"KinshipFile", j.KinshipFile,
		"SimFile", j.SimFile,
		"PhenoFile", j.PhenoFile,
		"Fastlmm", j.Fastlmm)
}

// Command returns the invocation of the job.
func (j KinshipJob) Command() (Command, error) {
	if err := j.Validate(); err != nil {
		return Command{}, err
	}
	return Command{
		Name: "kinship " + j.BlockFile,
		Path: j.Rscript,
		Args: []string{j.Script, j.BlockFile, j.ManifestFile, j.GenabelGen, j.GenabelPhen,
			j.KinshipFile, j.SimFile, j.PhenoFile, j.Fastlmm},
	}, nil
}

// AnalysisJob runs the association R script over one or more batch files.
type AnalysisJob struct {
	Rscript      string
	Script       string
	BatchFiles   []string
	ManifestFile string
	KinshipFile  string
	SubBlockSize int
	PAccuracy    float64
	// Debug asks the script itself to stop after its first sub-block.
	Debug bool
}

// Validate checks that every parameter is set and in range.
func (j AnalysisJob) Validate() error {
	if err := requireFields("analysis job",
		"Rscript", j.Rscript,
		"Script", j.Script,
		"ManifestFile", j.ManifestFile,
		"KinshipFile", j.KinshipFile); err != nil {
		return err
	}
	if len(j.BatchFiles) == 0 {
		return errors.E(errors.Invalid, "analysis job: no batch file")
	}
	for _, f := range j.BatchFiles {
		if f == "" || strings.Contains(f, ",") {
			return errors.E(errors.Invalid, fmt.Sprintf("analysis job: invalid batch file name %q", f))
		}
	}
	if j.SubBlockSize <= 0 {
		return errors.E(errors.Invalid, "analysis job: sub-block size must be positive")
	}
	if j.PAccuracy <= 0 {
		return errors.E(errors.Invalid, "analysis job: p-value accuracy must be positive")
	}
	return nil
}

// Command returns the invocation of the job.
func (j AnalysisJob) Command() (Command, error) {
	if err := j.Validate(); err != nil {
		return Command{}, err
	}
	batches := strings.Join(j.BatchFiles, ",")
	return Command{
		Name: "askat " + batches,
		Path: j.Rscript,
		Args: []string{
			j.Script,
			batches,
			j.ManifestFile,
			j.KinshipFile,
			strconv.Itoa(j.SubBlockSize),
			strconv.FormatFloat(j.PAccuracy, 'g', -1, 64),
			strings.ToUpper(strconv.FormatBool(j.Debug)),
		},
	}, nil
}
