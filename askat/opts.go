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
	"runtime"
	"strings"

	"github.com/grailbio/askat/encoding/converter"
	"github.com/grailbio/base/errors"
)

// KinshipMethod selects how the genotype table is split into blocks, each of
// which gets its own kinship matrix.
type KinshipMethod int

const (
	// KinshipBlock starts a new block every Opts.BlockSize records and at
	// every chromosome change.
	KinshipBlock KinshipMethod = iota
	// KinshipChromosome starts a new block at every chromosome change.
	KinshipChromosome
	// KinshipChromosomeAvg averages per-chromosome kinship matrices. It is
	// not supported.
	KinshipChromosomeAvg
	// KinshipAll puts the whole genome in a single block.
	KinshipAll
)

var kinshipMethodNames = []string{
	KinshipBlock:         "block",
	KinshipChromosome:    "chr",
	KinshipChromosomeAvg: "avg",
	KinshipAll:           "all",
}

func (k KinshipMethod) String() string {
	if int(k) < len(kinshipMethodNames) {
		return kinshipMethodNames[k]
	}
	return fmt.Sprintf("KinshipMethod(%d)", int(k))
}

// ParseKinshipMethod parses one of "block", "chr", "avg" or "all".
func ParseKinshipMethod(s string) (KinshipMethod, error) {
	for i, name := range kinshipMethodNames {
		if name == strings.ToLower(s) {
			return KinshipMethod(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown kinship method %q; want one of %s",
		s, strings.Join(kinshipMethodNames, ", ")))
}

// VeryLargeBlockSize is the block size used when blocks are not bounded by a
// record count.
const VeryLargeBlockSize = 1000 * 1000 * 1000

// Names of the external programs and R scripts.
const (
	ProgR       = "R"
	ProgRscript = "Rscript"
	ProgFastlmm = "fastlmmc"

	ScriptKinship = "kinship.r"
	ScriptAskat   = "askat.r"
)

// RLibraries lists the R packages the analysis scripts load.
var RLibraries = []string{"GenABEL", "CompQuadForm", "nFactors", "MASS"}

// Opts holds the settings of a pipeline run, as given on the command line.
// New validates them. DebugOnce runs a single analysis job over the first
// block and then stops; it implies Debug and Verbose.
type Opts struct {
	BedPath           string
	BinPath           string
	BlockSize         int
	Debug             bool
	DebugOnce         bool
	KinshipMethod     string
	MaxMaf            float64
	MinVariants       int
	MissingPolicy     string
	NoDependencyCheck bool
	OnlySnp           bool
	PAccuracy         float64
	RPath             string
	SubBlockSize      int
	SummaryPath       string
	Verbose           bool
	Workers           int
}

// DefaultOpts holds the default values of the command-line flags.
var DefaultOpts = Opts{
	BinPath:       "./",
	BlockSize:     VeryLargeBlockSize,
	KinshipMethod: "chr",
	MaxMaf:        1.0,
	MinVariants:   3,
	MissingPolicy: "omit",
	PAccuracy:     1e-9,
	RPath:         "./r/",
	SubBlockSize:  20,
	Workers:       0,
}

// askatOpts is the validated form of Opts.
type askatOpts struct {
	bedPath      string
	binPaths     []string
	blockSize    int
	debug        bool
	debugOnce    bool
	kinship      KinshipMethod
	maxMaf       float64
	minVariants  int
	convert      converter.Opts
	checkDeps    bool
	pAccuracy    float64
	rPath        string
	subBlockSize int
	summaryPath  string
	verbose      bool
	workers      int
}

func withSlash(dir string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

func newAskatOpts(raw *Opts) (opts askatOpts, err error) {
	if opts.kinship, err = ParseKinshipMethod(raw.KinshipMethod); err != nil {
		return
	}
	if opts.kinship == KinshipChromosomeAvg {
		return opts, errors.E(errors.NotSupported, "kinship method 'avg' (per-chromosome averaged kinship) is not implemented")
	}
	if opts.convert.Missing, err = converter.ParseMissingPolicy(raw.MissingPolicy); err != nil {
		return
	}
	opts.convert.OnlySNP = raw.OnlySnp

	opts.workers = raw.Workers
	if opts.workers <= 0 {
		opts.workers = runtime.NumCPU()
	}
	if opts.minVariants = raw.MinVariants; opts.minVariants <= 0 {
		return opts, errors.E(errors.Invalid, "min-variants must be positive")
	}
	if opts.subBlockSize = raw.SubBlockSize; opts.subBlockSize <= 0 {
		return opts, errors.E(errors.Invalid, "sub-block size must be positive")
	}
	if opts.maxMaf = raw.MaxMaf; opts.maxMaf <= 0 {
		return opts, errors.E(errors.Invalid, "max-maf must be positive")
	}
	if opts.pAccuracy = raw.PAccuracy; opts.pAccuracy <= 0 {
		return opts, errors.E(errors.Invalid, "p-value accuracy must be positive")
	}
	opts.bedPath = raw.BedPath
	opts.blockSize = raw.BlockSize
	if opts.bedPath != "" {
		// Interval batches must see whole chromosomes.
		opts.blockSize = VeryLargeBlockSize
	}
	if opts.kinship == KinshipBlock && (opts.blockSize < opts.subBlockSize || opts.blockSize%opts.subBlockSize != 0) {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("block size (%d) must be a multiple of sub-block size (%d)",
			opts.blockSize, opts.subBlockSize))
	}
	for _, dir := range strings.Split(raw.BinPath, ":") {
		if dir != "" {
			opts.binPaths = append(opts.binPaths, withSlash(dir))
		}
	}
	opts.rPath = withSlash(raw.RPath)
	// Single-shot debugging is a debug run, with its logging.
	opts.debugOnce = raw.DebugOnce
	opts.debug = raw.Debug || raw.DebugOnce
	opts.checkDeps = !raw.NoDependencyCheck
	opts.summaryPath = raw.SummaryPath
	opts.verbose = raw.Verbose || raw.DebugOnce
	return opts, nil
}
