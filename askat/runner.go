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
	"io"
	"io/ioutil"
	"os/exec"

	"github.com/grailbio/base/errors"
	"golang.org/x/sync/errgroup"
	"v.io/x/lib/vlog"
)

// Runner runs external programs. Run starts cmd, feeds every line of its
// standard output to stdout and of its standard error to stderr, and waits
// for it to exit. A program that runs and exits non-zero is reported through
// exitCode with a nil error; err is reserved for failures to run it at all.
// Line callbacks may be invoked concurrently.
type Runner interface {
	Run(cmd Command, stdout, stderr func(line string)) (exitCode int, err error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct{}

// maxOutputLine bounds the length of a line of program output.
var maxOutputLine = 16 << 20

// drain feeds the lines of r to fn. After a read error, such as a line
// longer than maxOutputLine, the rest of r is discarded so that the writer
// never blocks on a full pipe.
func drain(r io.Reader, fn func(string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxOutputLine)
	for s.Scan() {
		if fn != nil {
			fn(s.Text())
		}
	}
	err := s.Err()
	if err != nil {
		_, _ = io.Copy(ioutil.Discard, r)
	}
	return err
}

// Run implements Runner.
func (ExecRunner) Run(cmd Command, stdout, stderr func(string)) (int, error) {
	vlog.VI(1).Infof("%s: %s", cmd.Name, cmd)
	c := exec.Command(cmd.Path, cmd.Args...)
	outPipe, err := c.StdoutPipe()
	if err != nil {
		return -1, errors.E(err, cmd.Name)
	}
	errPipe, err := c.StderrPipe()
	if err != nil {
		return -1, errors.E(err, cmd.Name)
	}
	if err := c.Start(); err != nil {
		return -1, errors.E(errors.NotExist, err, "start", cmd.Path)
	}
	var eg errgroup.Group
	eg.Go(func() error { return drain(outPipe, stdout) })
	eg.Go(func() error { return drain(errPipe, stderr) })
	drainErr := eg.Wait()
	if err := c.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, errors.E(err, cmd.Name)
	}
	if drainErr != nil {
		return 0, errors.E(drainErr, "read output of", cmd.Name)
	}
	return 0, nil
}
