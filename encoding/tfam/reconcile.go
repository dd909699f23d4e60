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
package tfam

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Reconciliation is the result of matching a manifest against the samples
// of a variant source.
type Reconciliation struct {
	// Manifest holds the retained samples, in source order.
	Manifest Manifest
	// Mask has one entry per source sample; true means the sample is kept.
	Mask []bool
	// Changed reports whether Manifest differs textually from the input
	// manifest.
	Changed bool
}

// Reconcile keeps the source samples that appear in m, in source order.
// Source samples absent from m are masked out and manifest samples absent
// from the source are dropped. Reconcile fails if no sample survives.
func Reconcile(m Manifest, sourceSamples []string) (Reconciliation, error) {
	if len(m) != len(sourceSamples) {
		log.Printf("WARNING: manifest has %d samples, variant source has %d; keeping only samples present in both",
			len(m), len(sourceSamples))
	}
	var (
		idx = m.Index()
		r   = Reconciliation{Mask: make([]bool, len(sourceSamples))}
	)
	for i, id := range sourceSamples {
		s, ok := idx[id]
		if !ok {
			continue
		}
		r.Mask[i] = true
		r.Manifest = append(r.Manifest, s)
	}
	if len(r.Manifest) == 0 {
		return Reconciliation{}, errors.E(errors.Invalid,
			"no sample is shared between the manifest and the variant source; check that sample ids match")
	}
	r.Changed = r.Manifest.String() != m.String()
	return r, nil
}

// BackupPath returns the name under which a manifest is preserved before
// being rewritten at time t.
func BackupPath(path string, t time.Time) string {
	return path + "." + strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 10)
}

// ReconcilePath reconciles the manifest at path against sourceSamples. If
// the reconciled manifest differs from the stored one, the stored file is
// renamed to BackupPath(path, now) and the reconciled manifest is written
// in its place.
func ReconcilePath(ctx context.Context, path string, sourceSamples []string) (Reconciliation, error) {
	m, err := ReadPath(ctx, path)
	if err != nil {
		return Reconciliation{}, err
	}
	r, err := Reconcile(m, sourceSamples)
	if err != nil {
		return Reconciliation{}, errors.E(err, path)
	}
	if !r.Changed {
		return r, nil
	}
	backup := BackupPath(path, time.Now())
	if err := os.Rename(path, backup); err != nil {
		return Reconciliation{}, errors.E(err, fmt.Sprintf("back up manifest %s to %s", path, backup))
	}
	log.Printf("manifest %s rewritten with %d samples; original saved as %s", path, len(r.Manifest), backup)
	if err := WritePath(ctx, path, r.Manifest); err != nil {
		return Reconciliation{}, err
	}
	return r, nil
}
