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
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// ArtifactStore hands out expensive, reusable files. Ensure checks whether
// an artifact exists, computes it into a staging path if it does not, and
// publishes the staged file under its final name by renaming it. At most
// one computation per path runs at a time, so concurrent callers never see a
// partially written artifact.
type ArtifactStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewArtifactStore returns an empty ArtifactStore.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{locks: map[string]*sync.Mutex{}}
}

func (s *ArtifactStore) lock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// StagingPath returns the path an artifact is computed into before it is
// published. The extension is kept so that tools keying on it still work.
func StagingPath(path string) string {
	dir, base := filepath.Split(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return dir + base[:i] + ".partial" + base[i:]
	}
	return path + ".partial"
}

// Exists reports whether path exists.
func Exists(ctx context.Context, path string) (bool, error) {
	_, err := file.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(errors.NotExist, err) || os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.E(err, "stat", path)
}

// Ensure makes sure the artifact at path exists. If it already does, Ensure
// returns (false, nil) without calling compute. Otherwise it calls compute
// with a staging path, and on success renames the staged file to path and
// returns (true, nil). A failed computation leaves no file at path.
func (s *ArtifactStore) Ensure(ctx context.Context, path string, compute func(staging string) error) (computed bool, err error) {
	l := s.lock(path)
	l.Lock()
	defer l.Unlock()

	exists, err := Exists(ctx, path)
	if err != nil || exists {
		return false, err
	}
	staging := StagingPath(path)
	_ = os.Remove(staging)
	if err := compute(staging); err != nil {
		_ = os.Remove(staging)
		return false, err
	}
	if exists, err = Exists(ctx, staging); err != nil {
		return false, err
	}
	if !exists {
		return false, errors.E(errors.Integrity, "artifact computation succeeded but produced no file", staging)
	}
	if err := os.Rename(staging, path); err != nil {
		return false, errors.E(err, "publish", path)
	}
	return true, nil
}
