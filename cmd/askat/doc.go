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

/*
askat runs the ASKAT rare-variant association test over a genotype data set
given as a TPED table plus a TFAM sample manifest sharing one prefix.

Variants above the minor-allele-frequency ceiling are dropped, the rest are
split into blocks (per chromosome by default) and each block gets a kinship
matrix computed by r/kinship.r and FaST-LMM. Blocks are then cut into numeric
batch files, either of a fixed size or one per BED interval, and r/askat.r
is run over them on a bounded number of worker processes. Result and warning
lines of the analysis are printed on standard output.

Sample usage:
askat run \
    -bed genes.bed \
    -min-variants 3 \
    -workers 16 \
    data/cohort

reads data/cohort.tped and data/cohort.tfam. If the TPED does not exist it is
created from data/cohort.vcf or data/cohort.vcf.gz; the manifest is then
reconciled with the VCF samples, keeping a timestamped backup of the original.

askat vcf2tped runs the VCF conversion alone, and askat deps only checks that
R, Rscript, fastlmmc, the required R libraries and the R scripts are
available.

Exit status is 0 on success, 1 on a fatal pipeline error, 2 on a usage error
and 10 when a dependency is missing.
*/
package main
