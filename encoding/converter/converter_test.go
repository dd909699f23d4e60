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
package converter_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/askat/encoding/converter"
	"github.com/grailbio/askat/encoding/tfam"
	"github.com/grailbio/askat/encoding/vcf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
1	100	rs1	A	G	.	PASS	.	GT	0/1	1/1	0/0
1	200	.	C	T	.	PASS	.	GT	0/0	./.	0/1
1	300	.	G	A,C	.	PASS	.	GT	0/1	0/2	0/0
1	400	.	AT	A	.	PASS	.	GT	0/1	1/1	0/0
1	500	.	T	C	.	PASS	.	GT	0	0/1	1/1
`

func convert(t *testing.T, opts converter.Opts, mask []bool) (string, converter.Stats) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	path := filepath.Join(tmpdir, "in.vcf")
	require.NoError(t, ioutil.WriteFile(path, []byte(testVCF), 0644))
	sc, err := vcf.Open(path)
	require.NoError(t, err)
	defer sc.Close()
	var buf bytes.Buffer
	stats, err := converter.Convert(sc, mask, &buf, opts)
	require.NoError(t, err)
	return buf.String(), stats
}

func TestMissingPolicies(t *testing.T) {
	tests := []struct {
		policy converter.MissingPolicy
		want   string
		stats  converter.Stats
	}{
		{
			converter.OmitLine,
			"1\trs1\t0\t100\tA\tG\tG\tG\tA\tA\n" +
				"1\tid_4\t0\t400\tA\tT\tT\tT\tA\tA\n",
			converter.Stats{LinesRead: 5, LinesWritten: 2, SkippedNonBiallelic: 1, SkippedMissing: 2},
		},
		{
			converter.EncodeMissing,
			"1\trs1\t0\t100\tA\tG\tG\tG\tA\tA\n" +
				"1\tid_2\t0\t200\tC\tC\t0\t0\tC\tT\n" +
				"1\tid_4\t0\t400\tA\tT\tT\tT\tA\tA\n" +
				"1\tid_5\t0\t500\t0\t0\tT\tC\tC\tC\n",
			converter.Stats{LinesRead: 5, LinesWritten: 4, SkippedNonBiallelic: 1},
		},
		{
			converter.EncodeReference,
			"1\trs1\t0\t100\tA\tG\tG\tG\tA\tA\n" +
				"1\tid_2\t0\t200\tC\tC\tC\tC\tC\tT\n" +
				"1\tid_4\t0\t400\tA\tT\tT\tT\tA\tA\n" +
				"1\tid_5\t0\t500\tT\tT\tT\tC\tC\tC\n",
			converter.Stats{LinesRead: 5, LinesWritten: 4, SkippedNonBiallelic: 1},
		},
	}
	for _, test := range tests {
		got, stats := convert(t, converter.Opts{Missing: test.policy}, nil)
		assert.Equal(t, test.want, got, test.policy.String())
		assert.Equal(t, test.stats, stats, test.policy.String())
	}
}

func TestOnlySNPAndMask(t *testing.T) {
	got, stats := convert(t, converter.Opts{OnlySNP: true, Missing: converter.EncodeMissing}, []bool{false, true, true})
	assert.Equal(t,
		"1\trs1\t0\t100\tG\tG\tA\tA\n"+
			"1\tid_2\t0\t200\t0\t0\tC\tT\n"+
			"1\tid_5\t0\t500\tT\tC\tC\tC\n",
		got)
	assert.Equal(t, 1, stats.SkippedNonSNP)
	assert.Equal(t, 3, stats.LinesWritten)
}

func TestParseMissingPolicy(t *testing.T) {
	for _, p := range []converter.MissingPolicy{converter.OmitLine, converter.EncodeMissing, converter.EncodeReference} {
		got, err := converter.ParseMissingPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := converter.ParseMissingPolicy("drop")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestConvertVCFToTPED(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	vcfPath := filepath.Join(tmpdir, "in.vcf")
	tpedPath := filepath.Join(tmpdir, "out.tped")
	tfamPath := filepath.Join(tmpdir, "out.tfam")
	require.NoError(t, ioutil.WriteFile(vcfPath, []byte(testVCF), 0644))
	require.NoError(t, ioutil.WriteFile(tfamPath, []byte("f s3 0 0 1 2\nf s9 0 0 1 1\nf s1 0 0 2 1\n"), 0644))

	stats, err := converter.ConvertVCFToTPED(ctx, vcfPath, tpedPath, tfamPath, converter.Opts{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.LinesWritten)

	data, err := ioutil.ReadFile(tpedPath)
	require.NoError(t, err)
	assert.Equal(t,
		"1\trs1\t0\t100\tA\tG\tA\tA\n"+
			"1\tid_2\t0\t200\tC\tC\tC\tT\n"+
			"1\tid_4\t0\t400\tA\tT\tA\tA\n",
		string(data))

	m, err := tfam.ReadPath(ctx, tfamPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, m.IDs())

	// No shared sample is fatal.
	require.NoError(t, ioutil.WriteFile(tfamPath, []byte("f x 0 0 1 2\n"), 0644))
	_, err = converter.ConvertVCFToTPED(ctx, vcfPath, tpedPath, tfamPath, converter.Opts{})
	require.Error(t, err)
}

func TestConvertMalformedVCF(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	vcfPath := filepath.Join(tmpdir, "in.vcf")
	tpedPath := filepath.Join(tmpdir, "out.tped")
	tfamPath := filepath.Join(tmpdir, "out.tfam")
	// The second record has a non-numeric position.
	lines := strings.SplitAfter(testVCF, "\n")
	lines[3] = "1\tpos\t.\tC\tT\t.\tPASS\t.\tGT\t0/0\t0/0\t0/1\n"
	require.NoError(t, ioutil.WriteFile(vcfPath, []byte(strings.Join(lines, "")), 0644))
	require.NoError(t, ioutil.WriteFile(tfamPath, []byte("f s1 0 0 1 2\nf s2 0 0 2 1\nf s3 0 0 1 1\n"), 0644))

	_, err := converter.ConvertVCFToTPED(ctx, vcfPath, tpedPath, tfamPath, converter.Opts{})
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = os.Stat(tpedPath)
	assert.True(t, os.IsNotExist(err), "%v", err)
}
