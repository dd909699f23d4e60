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
package tped

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// OrderChecker verifies that consecutive records on the same chromosome
// appear in non-decreasing position order. The zero value is ready to use.
type OrderChecker struct {
	chrom   string
	pos     int
	started bool
}

// Check returns a Precondition error if rec is on the same chromosome as the
// previously checked record but at a smaller position.
func (c *OrderChecker) Check(rec *Record) error {
	if c.started && rec.Chrom == c.chrom && rec.Pos < c.pos {
		return errors.E(errors.Precondition,
			fmt.Sprintf("genotype file is not sorted: %s:%d follows %s:%d; sort by chromosome and position first",
				rec.Chrom, rec.Pos, c.chrom, c.pos))
	}
	c.chrom, c.pos, c.started = rec.Chrom, rec.Pos, true
	return nil
}
