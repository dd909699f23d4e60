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
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRunner plays the part of the R scripts. The kinship script touches
// its output files; the analysis script prints one result line per batch
// file plus some noise on both streams.
type fakeRunner struct {
	mu            sync.Mutex
	kinshipRuns   int
	kinshipExit   int
	analysisExit  int
	analysisCalls [][]string
	analysisArgs  [][]string
}

func emit(fn func(string), line string) {
	if fn != nil {
		fn(line)
	}
}

func countFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	s := bufio.NewScanner(f)
	for s.Scan() {
		n++
	}
	return n, s.Err()
}

func (f *fakeRunner) Run(cmd Command, stdout, stderr func(string)) (int, error) {
	switch filepath.Base(cmd.Args[0]) {
	case ScriptKinship:
		f.mu.Lock()
		f.kinshipRuns++
		f.mu.Unlock()
		if f.kinshipExit != 0 {
			emit(stderr, "Error in kinship")
			return f.kinshipExit, nil
		}
		for _, i := range []int{3, 4, 5, 6, 7} {
			if err := ioutil.WriteFile(cmd.Args[i], []byte("x\n"), 0644); err != nil {
				return -1, err
			}
		}
		return 0, nil
	case ScriptAskat:
		files := strings.Split(cmd.Args[1], ",")
		f.mu.Lock()
		f.analysisCalls = append(f.analysisCalls, files)
		f.analysisArgs = append(f.analysisArgs, cmd.Args)
		f.mu.Unlock()
		if f.analysisExit != 0 {
			return f.analysisExit, nil
		}
		for _, path := range files {
			n, err := countFileLines(path)
			if err != nil {
				return -1, err
			}
			emit(stdout, "loading libraries")
			emit(stdout, fmt.Sprintf("%s%s\t%d", ResultPrefix, filepath.Base(path), n))
		}
		emit(stderr, WarningPrefix+" p-value did not converge")
		emit(stderr, "Loading required package: MASS")
		return 0, nil
	}
	return 127, nil
}

// Allele counts of the records below, over three samples:
//   100, 120: A=5 C=1, MAF 0.167
//   110:      A=3 C=3, MAF 0.5
//   130:      C=5 A=1
//   140:      A=5 G=1
//   chr2:     T=5 A=1 and G=5 A=1
const testTPED = `1 rs100 0 100 A A A A A C
1 rs110 0 110 A A A C C C
1 rs120 0 120 A C A A A A
1 rs130 0 130 C C C A C C
1 rs140 0 140 A A G A A A
2 rs10 0 10 T T T T T A
2 rs20 0 20 G G A G G G
`

const testTFAM = `f1 s1 0 0 1 2
f2 s2 0 0 2 1
f3 s3 0 0 1 1
`

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

func writeExecutable(t *testing.T, path string) {
	require.NoError(t, ioutil.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755))
}

func mkdir(dir string) error { return os.MkdirAll(dir, 0755) }

func exists(t *testing.T, path string) bool {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func testOpts(dir string) Opts {
	opts := DefaultOpts
	opts.MaxMaf = 0.3
	opts.SubBlockSize = 2
	opts.Workers = 2
	opts.RPath = dir
	return opts
}

var testPrograms = Programs{R: "R", Rscript: "Rscript", Fastlmm: "fastlmmc"}
