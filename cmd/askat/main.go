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
package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/grailbio/askat/askat"
	"github.com/grailbio/askat/encoding/converter"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

// exitMissingDependency is the exit status when a required program, R
// library or R script cannot be found.
const exitMissingDependency = 10

func addConvertFlags(fs *flag.FlagSet, opts *askat.Opts) {
	fs.BoolVar(&opts.OnlySnp, "only-snp", opts.OnlySnp, "Drop VCF variants that are not single-base substitutions")
	fs.StringVar(&opts.MissingPolicy, "missing", opts.MissingPolicy,
		"What to do with VCF lines holding a missing genotype: 'omit' the line, encode the call as 'missing', or as 'reference'")
}

func addDepsFlags(fs *flag.FlagSet, opts *askat.Opts) {
	fs.StringVar(&opts.BinPath, "bin-path", opts.BinPath, "Colon-separated directories searched for R, Rscript and fastlmmc when they are not on PATH")
	fs.StringVar(&opts.RPath, "r-path", opts.RPath, "Directory holding the kinship.r and askat.r scripts")
	fs.BoolVar(&opts.NoDependencyCheck, "no-deps", opts.NoDependencyCheck, "Do not check that programs, R libraries and R scripts are available")
	fs.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "Log progress")
}

func addRunFlags(fs *flag.FlagSet, opts *askat.Opts) {
	addConvertFlags(fs, opts)
	addDepsFlags(fs, opts)
	fs.StringVar(&opts.BedPath, "bed", opts.BedPath, "BED file of intervals (genes); one batch file is analyzed per interval. Implies one block per chromosome at most")
	fs.IntVar(&opts.BlockSize, "block-size", opts.BlockSize, "Maximum number of variants per block with -kinship=block; must be a multiple of -sub-block")
	fs.IntVar(&opts.SubBlockSize, "sub-block", opts.SubBlockSize, "Number of variants the analysis script processes at a time")
	fs.IntVar(&opts.MinVariants, "min-variants", opts.MinVariants, "An interval is analyzed only if it holds more than this many variants")
	fs.Float64Var(&opts.MaxMaf, "max-maf", opts.MaxMaf, "Drop variants whose minor allele frequency is above this value")
	fs.Float64Var(&opts.PAccuracy, "p-acc", opts.PAccuracy, "Accuracy of the p-value computation")
	fs.StringVar(&opts.KinshipMethod, "kinship", opts.KinshipMethod,
		"How variants are grouped for kinship matrices: 'block' (every -block-size variants), 'chr' (per chromosome), 'all' (whole genome) or 'avg' (not supported)")
	fs.IntVar(&opts.Workers, "workers", opts.Workers, "Maximum number of concurrent analysis processes; 0 = runtime.NumCPU()")
	fs.BoolVar(&opts.Debug, "debug", opts.Debug, "Show the output of the external programs and keep intermediate files")
	fs.BoolVar(&opts.DebugOnce, "debug-once", opts.DebugOnce, "Run a single analysis job, in the script's debug mode, then stop; implies -debug and -verbose")
	fs.StringVar(&opts.SummaryPath, "summary", opts.SummaryPath, "If set, write run statistics to this TSV file")
}

// checkDependencies maps validation errors to usage errors and missing
// dependencies to exitMissingDependency.
func checkDependencies(env *cmdline.Env, opts *askat.Opts) (askat.Programs, error) {
	progs, err := askat.CheckDependencies(vcontext.Background(), opts, askat.ExecRunner{})
	switch {
	case err == nil:
		return progs, nil
	case errors.Is(errors.Invalid, err):
		return progs, env.UsageErrorf("%v", err)
	case errors.Is(errors.NotExist, err):
		fmt.Fprintf(env.Stderr, "ERROR: %v\n", err)
		return progs, cmdline.ErrExitCode(exitMissingDependency)
	}
	return progs, err
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Run the association test over <genotype>.tped and <genotype>.tfam",
		ArgsName: "genotype",
		ArgsLong: `<genotype> is the common prefix of the TPED genotype table and the TFAM
sample manifest. A missing TPED is created from <genotype>.vcf or
<genotype>.vcf.gz.`,
	}
	opts := askat.DefaultOpts
	addRunFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return env.UsageErrorf("run takes one genotype prefix, but got %v", argv)
		}
		genotype := strings.TrimSuffix(argv[0], ".tped")
		progs, err := checkDependencies(env, &opts)
		if err != nil {
			return err
		}
		p, err := askat.New(&opts, progs, askat.ExecRunner{}, env.Stdout)
		if err != nil {
			return err
		}
		_, err = p.Run(vcontext.Background(), genotype)
		return err
	})
	return cmd
}

func newCmdVCF2TPED() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "vcf2tped",
		Short:    "Convert a VCF into a TPED genotype table, reconciling the TFAM manifest with the VCF samples",
		ArgsName: "vcf tped tfam",
	}
	opts := askat.DefaultOpts
	addConvertFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return env.UsageErrorf("vcf2tped takes vcf, tped and tfam paths, but got %v", argv)
		}
		missing, err := converter.ParseMissingPolicy(opts.MissingPolicy)
		if err != nil {
			return env.UsageErrorf("%v", err)
		}
		stats, err := converter.ConvertVCFToTPED(vcontext.Background(), argv[0], argv[1], argv[2],
			converter.Opts{OnlySNP: opts.OnlySnp, Missing: missing})
		if err != nil {
			return err
		}
		log.Printf("%s: %s", argv[0], stats)
		return nil
	})
	return cmd
}

func newCmdDeps() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "deps",
		Short: "Check that the external programs, R libraries and R scripts are available",
	}
	opts := askat.DefaultOpts
	addDepsFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return env.UsageErrorf("deps takes no arguments, but got %v", argv)
		}
		progs, err := checkDependencies(env, &opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%s\t%s\n%s\t%s\n%s\t%s\n",
			askat.ProgR, progs.R, askat.ProgRscript, progs.Rscript, askat.ProgFastlmm, progs.Fastlmm)
		return nil
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "askat",
		Short:    "Rare-variant association testing with ASKAT",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdVCF2TPED(),
			newCmdDeps(),
		},
	}
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
