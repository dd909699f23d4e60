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
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"v.io/x/lib/lookpath"
)

// Programs holds the resolved paths of the external programs.
type Programs struct {
	R       string
	Rscript string
	Fastlmm string
}

// MissingDependencyError is returned by CheckDependencies when a program,
// R library or R script cannot be found.
type MissingDependencyError struct {
	What    string
	Suggest string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %s\n%s", e.What, e.Suggest)
}

const suggestBin = "If already installed, set the directories holding it with -bin-path."

var programHints = map[string]string{
	ProgR:       "You can install it from http://www.r-project.org/. " + suggestBin,
	ProgRscript: "You can install it from http://www.r-project.org/. " + suggestBin,
	ProgFastlmm: "You can install FaST-LMM from http://research.microsoft.com/en-us/um/redmond/projects/MSCompBio/Fastlmm/. " + suggestBin,
}

// checkArgs are run to confirm that a located program actually works.
var checkArgs = map[string][]string{
	ProgR:       {"--vanilla", "-e", "q()"},
	ProgRscript: {"-e", "q()"},
}

func missing(what, suggest string) error {
	return errors.E(errors.NotExist, &MissingDependencyError{What: what, Suggest: suggest})
}

// findProgram looks name up on PATH, then in binPaths.
func findProgram(name string, binPaths []string) (string, bool) {
	if path, err := lookpath.Look(map[string]string{"PATH": os.Getenv("PATH")}, name); err == nil {
		return path, true
	}
	if len(binPaths) == 0 {
		return "", false
	}
	dirs := make([]string, len(binPaths))
	for i, d := range binPaths {
		dirs[i] = strings.TrimSuffix(d, "/")
	}
	if path, err := lookpath.Look(map[string]string{"PATH": strings.Join(dirs, ":")}, name); err == nil {
		return path, true
	}
	return "", false
}

// CheckDependencies locates R, Rscript and fastlmmc. Unless
// opts.NoDependencyCheck is set, it also runs R and Rscript, loads every
// R library in RLibraries and requires the R scripts under opts.RPath. With
// the check disabled, programs that cannot be located resolve to their bare
// names.
func CheckDependencies(ctx context.Context, raw *Opts, runner Runner) (Programs, error) {
	opts, err := newAskatOpts(raw)
	if err != nil {
		return Programs{}, err
	}
	var progs Programs
	for _, p := range []struct {
		name string
		dst  *string
	}{
		{ProgR, &progs.R},
		{ProgRscript, &progs.Rscript},
		{ProgFastlmm, &progs.Fastlmm},
	} {
		path, ok := findProgram(p.name, opts.binPaths)
		if !ok {
			if opts.checkDeps {
				return Programs{}, missing("program "+p.name, programHints[p.name])
			}
			path = p.name
		}
		*p.dst = path
		if !opts.checkDeps {
			continue
		}
		if opts.verbose {
			log.Printf("checking dependency: program %s (%s)", p.name, path)
		}
		if args, ok := checkArgs[p.name]; ok {
			if code, err := runner.Run(Command{Name: "check " + p.name, Path: path, Args: args}, nil, nil); err != nil || code != 0 {
				return Programs{}, missing("program "+p.name, programHints[p.name])
			}
		}
	}
	if !opts.checkDeps {
		return progs, nil
	}
	for _, lib := range RLibraries {
		if opts.verbose {
			log.Printf("checking dependency: R library %s", lib)
		}
		cmd := Command{Name: "R library " + lib, Path: progs.R, Args: []string{"--vanilla", "-e", "library(" + lib + ")"}}
		if code, err := runner.Run(cmd, nil, nil); err != nil || code != 0 {
			return Programs{}, missing("R library "+lib,
				fmt.Sprintf("You can install it by running the following command from R:\n\tinstall.packages(%q)", lib))
		}
	}
	for _, script := range []string{ScriptKinship, ScriptAskat} {
		path := opts.rPath + script
		exists, err := Exists(ctx, path)
		if err != nil {
			return Programs{}, err
		}
		if !exists {
			return Programs{}, missing(path, "You can set the directory holding the R scripts with -r-path.")
		}
	}
	if opts.verbose {
		log.Printf("all dependencies found")
	}
	return progs, nil
}
