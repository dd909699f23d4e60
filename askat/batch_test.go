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
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/askat/encoding/tped"
	"github.com/grailbio/askat/interval"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchLines(t *testing.T) {
	for _, tt := range []struct {
		n, subBlock, workers, want int
	}{
		{100, 20, 2, 40},
		{100, 20, 1, 100},
		{99, 20, 1, 80},
		{10, 20, 4, 20},
		{0, 20, 4, 20},
		{7, 2, 3, 2},
	} {
		assert.Equal(t, tt.want, batchLines(tt.n, tt.subBlock, tt.workers), "%+v", tt)
	}
}

func numericLines(t *testing.T, data string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		rec, err := tped.Parse(line)
		require.NoError(t, err)
		lines = append(lines, rec.NumericLine())
	}
	return lines
}

func TestFixedBatches(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)

	blockData := testTPED
	blockFile := filepath.Join(tempDir, "geno.block.1_100.tped")
	writeFile(t, blockFile, blockData)
	want := numericLines(t, blockData)

	for _, tt := range []struct {
		workers int
		sizes   []int
	}{
		{1, []int{6, 1}},
		{3, []int{2, 2, 2, 1}},
	} {
		opts := testOpts(tempDir)
		opts.Workers = tt.workers
		p, err := New(&opts, testPrograms, &fakeRunner{}, ioutil.Discard)
		require.NoError(t, err)
		batches, err := p.fixedBatches(ctx, newBlock(blockFile))
		require.NoError(t, err)
		require.Len(t, batches, len(tt.sizes))

		var got []string
		for i, path := range batches {
			assert.Equal(t, fixedBatchName(filepath.Join(tempDir, "geno.block.1_100"), i+1), path)
			data, err := ioutil.ReadFile(path)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			assert.Len(t, lines, tt.sizes[i], "batch %d", i+1)
			got = append(got, lines...)
		}
		assert.Equal(t, want, got)
	}
}

func record(t *testing.T, chrom string, pos int) *tped.Record {
	rec, err := tped.Parse(fmt.Sprintf("%s v%d 0 %d A C", chrom, pos, pos))
	require.NoError(t, err)
	return rec
}

type memBatches struct {
	files map[string][]string
}

func (m *memBatches) write(path string, lines []string) error {
	if m.files == nil {
		m.files = map[string][]string{}
	}
	m.files[path] = append([]string(nil), lines...)
	return nil
}

func overlappingIndex(t *testing.T) (*interval.Index, []*interval.Interval) {
	ivs := []*interval.Interval{
		{Chrom: "1", Start: 100, End: 200, Name: "I1", Ordinal: 0},
		{Chrom: "1", Start: 150, End: 250, Name: "I2", Ordinal: 1},
	}
	index, err := interval.NewIndex(ivs)
	require.NoError(t, err)
	return index, ivs
}

func TestIntervalBatcherOverlap(t *testing.T) {
	index, ivs := overlappingIndex(t)
	var m memBatches
	ib := newIntervalBatcher(index, "geno.block.1_100", 1, m.write)

	r100, r160, r220 := record(t, "1", 100), record(t, "1", 160), record(t, "1", 220)
	require.NoError(t, ib.add(r100))
	require.NoError(t, ib.add(r160))
	assert.Empty(t, ib.batches)
	// 220 misses I1, which is finalized before 220 is routed.
	require.NoError(t, ib.add(r220))
	i1 := intervalBatchName("geno.block.1_100", ivs[0], 0)
	assert.Equal(t, []string{i1}, ib.batches)
	require.NoError(t, ib.finish())
	i2 := intervalBatchName("geno.block.1_100", ivs[1], 0)
	assert.Equal(t, []string{i1, i2}, ib.batches)

	assert.Equal(t, "geno.block.1_100.1:100-200_I1.askat", i1)
	assert.Equal(t, []string{r100.NumericLine(), r160.NumericLine()}, m.files[i1])
	assert.Equal(t, []string{r160.NumericLine(), r220.NumericLine()}, m.files[i2])
}

func TestIntervalBatcherThreshold(t *testing.T) {
	index, _ := overlappingIndex(t)
	var m memBatches
	ib := newIntervalBatcher(index, "b", 2, m.write)
	for _, pos := range []int{100, 160, 220, 5000} {
		require.NoError(t, ib.add(record(t, "1", pos)))
	}
	require.NoError(t, ib.finish())
	assert.Empty(t, ib.batches)
	assert.Empty(t, m.files)
}

func TestIntervalBatcherRehit(t *testing.T) {
	iv := &interval.Interval{Chrom: "1", Start: 100, End: 300, Name: "gene A/B", Ordinal: 0}
	index, err := interval.NewIndex([]*interval.Interval{iv})
	require.NoError(t, err)
	var m memBatches
	ib := newIntervalBatcher(index, "b", 0, m.write)
	require.NoError(t, ib.add(record(t, "1", 100)))
	require.NoError(t, ib.add(record(t, "2", 5)))
	require.NoError(t, ib.add(record(t, "1", 200)))
	require.NoError(t, ib.finish())
	assert.Equal(t, []string{
		"b.1:100-300_gene_A_B.askat",
		"b.1:100-300_gene_A_B.1.askat",
	}, ib.batches)
	for _, path := range ib.batches {
		assert.Len(t, m.files[path], 1, path)
	}
}
