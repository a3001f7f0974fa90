// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package ncompress

// findMatch searches the sliding window before pos for the longest run of
// bytes matching the data at pos, up to maxLength. It returns the match
// offset (absolute position in input) and its length; a length below 3 means
// no usable match, since encoding a pair costs at least two bytes.
func findMatch(input []byte, pos, maxLength int) (offset, length int) {
	window := pos - maxLookback
	if window < 0 {
		window = 0
	}

	maxMatch := len(input) - pos
	if maxMatch > maxLength {
		maxMatch = maxLength
	}
	if maxMatch < 3 {
		return 0, 0
	}

	for candidate := window; candidate < pos; candidate++ {
		if input[candidate] != input[pos] {
			continue
		}
		n := 1
		for n < maxMatch && input[candidate+n] == input[pos+n] {
			n++
		}
		if n > length {
			offset, length = candidate, n
			if length == maxMatch {
				break
			}
		}
	}
	if length < 3 {
		return 0, 0
	}
	return offset, length
}

// lazyMatch applies the one-byte lookahead heuristic shared by the Nintendo
// encoders: if deferring the current match by one literal byte yields a
// strictly better match, the caller should emit a literal first. It returns
// the chosen match and whether a literal byte must be emitted before it.
func lazyMatch(input []byte, pos, maxLength int) (offset, length int, deferByte bool) {
	offset, length = findMatch(input, pos, maxLength)
	if length < 3 {
		return offset, length, false
	}
	nextOffset, nextLength := findMatch(input, pos+1, maxLength)
	if length+1 < nextLength {
		return nextOffset, nextLength, true
	}
	return offset, length, false
}
