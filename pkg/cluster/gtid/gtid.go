// Copyright (c) 2026 The InnoDB Cluster Operator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gtid parses and compares MySQL GTID sets ("uuid:1-5:8-10,uuid2:1-3")
// well enough for the two things this repo's diagnosers need: counting
// transactions for reboot-seed selection and subset/errant comparisons for
// candidate classification. It is not a general-purpose GTID library -
// interval merging/compaction is left to the server, since every set this
// repo reads comes straight from @@global.gtid_executed.
package gtid

import (
	"sort"
	"strconv"
	"strings"
)

// interval is an inclusive transaction-number range.
type interval struct {
	lo, hi int64
}

func (iv interval) count() int64 { return iv.hi - iv.lo + 1 }

// Set is a parsed GTID set keyed by source UUID.
type Set map[string][]interval

// Parse parses a GTID set string. An empty or nil input yields an empty Set.
func Parse(s *string) Set {
	set := Set{}
	if s == nil || strings.TrimSpace(*s) == "" {
		return set
	}
	for _, uuidPart := range strings.Split(*s, ",") {
		uuidPart = strings.TrimSpace(uuidPart)
		if uuidPart == "" {
			continue
		}
		fields := strings.Split(uuidPart, ":")
		if len(fields) < 2 {
			continue
		}
		uuid := fields[0]
		for _, rng := range fields[1:] {
			lo, hi, ok := parseRange(rng)
			if !ok {
				continue
			}
			set[uuid] = append(set[uuid], interval{lo: lo, hi: hi})
		}
	}
	return set
}

func parseRange(rng string) (lo, hi int64, ok bool) {
	parts := strings.SplitN(rng, "-", 2)
	lo, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return lo, lo, true
	}
	hi, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// Count returns the total number of transactions represented by the set,
// the ordering key for reboot-seed selection.
func (s Set) Count() int64 {
	var total int64
	for _, intervals := range s {
		for _, iv := range intervals {
			total += iv.count()
		}
	}
	return total
}

// IsSubsetOf reports whether every transaction in s also appears in other.
func (s Set) IsSubsetOf(other Set) bool {
	for uuid, intervals := range s {
		otherIntervals, ok := other[uuid]
		if !ok {
			if len(intervals) > 0 {
				return false
			}
			continue
		}
		for _, iv := range intervals {
			if !coveredBy(iv, otherIntervals) {
				return false
			}
		}
	}
	return true
}

func coveredBy(iv interval, intervals []interval) bool {
	sorted := append([]interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo < sorted[j].lo })
	for n := iv.lo; n <= iv.hi; n++ {
		found := false
		for _, o := range sorted {
			if n >= o.lo && n <= o.hi {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Errant returns the transactions present in s but absent from baseline -
// the errant transactions that block incremental recovery.
func (s Set) Errant(baseline Set) Set {
	errant := Set{}
	for uuid, intervals := range s {
		baseIntervals := baseline[uuid]
		for _, iv := range intervals {
			for n := iv.lo; n <= iv.hi; n++ {
				if !coveredBy(interval{lo: n, hi: n}, baseIntervals) {
					errant[uuid] = append(errant[uuid], interval{lo: n, hi: n})
				}
			}
		}
	}
	return errant
}

// IsEmpty reports whether the set has no transactions at all.
func (s Set) IsEmpty() bool {
	return s.Count() == 0
}
