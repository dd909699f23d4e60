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
package vcf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
##source=test
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
1	100	rs1	A	G	.	PASS	.	GT:DP	0/1:10	1|1:3	./.:0
1	200	.	AT	A	.	PASS	.	GT	0/0	./.	1/0
2	50	.	C	.	.	PASS	.	GT	0/0	./.	0/0
`

func writeVCF(t *testing.T, path, data string, compress bool) {
	f, err := os.Create(path)
	require.NoError(t, err)
	if compress {
		gz := gzip.NewWriter(f)
		_, err = gz.Write([]byte(data))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
	} else {
		_, err = f.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func TestScanner(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	path := filepath.Join(tmpdir, "x.vcf")
	writeVCF(t, path, testVCF, false)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"s1", "s2", "s3"}, s.Header().Samples)

	var rec Record
	require.True(t, s.Scan(&rec))
	assert.Equal(t, "1", rec.Chrom)
	assert.Equal(t, 100, rec.Pos)
	assert.Equal(t, "rs1", rec.ID)
	assert.True(t, rec.IsSNP())
	assert.Equal(t, []int{0, 1}, rec.Genotypes[0].Alleles)
	assert.False(t, rec.Genotypes[0].Phased)
	assert.True(t, rec.Genotypes[1].Phased)
	assert.False(t, rec.Genotypes[1].Missing())
	assert.True(t, rec.Genotypes[2].Missing())

	require.True(t, s.Scan(&rec))
	assert.Equal(t, 200, rec.Pos)
	assert.False(t, rec.IsSNP())
	assert.Equal(t, []int{0, 0}, rec.Genotypes[0].Alleles)
	assert.True(t, rec.Genotypes[1].Missing())
	assert.Equal(t, []int{1, 0}, rec.Genotypes[2].Alleles)
	a, ok := rec.Allele(1)
	assert.True(t, ok)
	assert.Equal(t, "A", a)
	_, ok = rec.Allele(2)
	assert.False(t, ok)

	require.True(t, s.Scan(&rec))
	assert.Empty(t, rec.Alt)

	assert.False(t, s.Scan(&rec))
	require.NoError(t, s.Err())
	assert.Equal(t, 3, s.NumRecords())
}

func TestScannerErrors(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	_, err := Open(filepath.Join(tmpdir, "missing.vcf"))
	require.Error(t, err)

	path := filepath.Join(tmpdir, "bad.vcf")
	writeVCF(t, path, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n1\tx\t.\tA\tC\t.\t.\t.\n", false)
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Header().Samples)
	var rec Record
	assert.False(t, s.Scan(&rec))
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "record 1")
	assert.False(t, s.Scan(&rec))
}

func TestOpenGzip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	path := filepath.Join(tmpdir, "x.vcf.gz")
	writeVCF(t, path, testVCF, true)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	n := 0
	var rec Record
	for s.Scan(&rec) {
		n++
	}
	require.NoError(t, s.Err())
	assert.Equal(t, 3, n)
}
