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
package tfam_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/askat/encoding/tfam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestText = `f1 s1 0 0 1 2
f2 s2 0 0 2 1

f3 s3 p3 m3 -9 -9
`

func TestRead(t *testing.T) {
	m, err := tfam.Read(strings.NewReader(manifestText))
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, m.IDs())
	assert.Equal(t, tfam.SexMale, m[0].SexCode())
	assert.True(t, m[0].Affected())
	assert.Equal(t, tfam.SexFemale, m[1].SexCode())
	assert.False(t, m[1].Affected())
	assert.True(t, m[2].Missing())
	assert.Equal(t, "-9", m[2].Phenotype)
	assert.Equal(t, "-9", m[2].Sex)
	assert.Equal(t, tfam.SexUnknown, m[2].SexCode())
	assert.Equal(t, "f1\ts1\t0\t0\t1\t2\nf2\ts2\t0\t0\t2\t1\nf3\ts3\tp3\tm3\t-9\t-9\n", m.String())

	_, err = tfam.Read(strings.NewReader("f1 s1 0 0\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestReadNoPhenotype(t *testing.T) {
	m, err := tfam.Read(strings.NewReader("f1 s1 0 0 1\n"))
	require.NoError(t, err)
	assert.True(t, m[0].Missing())
	assert.Equal(t, "f1\ts1\t0\t0\t1\t0\n", m.String())
	assert.Equal(t, "f\tx\t0\t0\t0\t0\n", tfam.Manifest{{FamilyID: "f", ID: "x", PaternalID: "0", MaternalID: "0"}}.String())
}

func TestReconcile(t *testing.T) {
	m, err := tfam.Read(strings.NewReader(manifestText))
	require.NoError(t, err)

	r, err := tfam.Reconcile(m, []string{"s3", "s1", "s4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s1"}, r.Manifest.IDs())
	assert.Equal(t, []bool{true, true, false}, r.Mask)
	assert.True(t, r.Changed)

	r, err = tfam.Reconcile(m, []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, r.Mask)
	assert.False(t, r.Changed)

	_, err = tfam.Reconcile(m, []string{"x", "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestReconcilePath(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	path := filepath.Join(tmpdir, "samples.tfam")
	require.NoError(t, ioutil.WriteFile(path, []byte(manifestText), 0644))

	r, err := tfam.ReconcilePath(ctx, path, []string{"s3", "s1", "s4"})
	require.NoError(t, err)
	assert.True(t, r.Changed)

	got, err := tfam.ReadPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s1"}, got.IDs())
	// Unknown sex codes survive the rewrite verbatim.
	assert.Equal(t, "-9", got[0].Sex)
	assert.Equal(t, "f3\ts3\tp3\tm3\t-9\t-9\nf1\ts1\t0\t0\t1\t2\n", got.String())

	backups, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := ioutil.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, manifestText, string(data))

	// Already reconciled: nothing is rewritten.
	r, err = tfam.ReconcilePath(ctx, path, []string{"s3", "s1", "s4"})
	require.NoError(t, err)
	assert.False(t, r.Changed)
	backups, err = filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
