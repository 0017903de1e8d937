package synth

import "github.com/mudtracker/fmengine/pkg/tracker"

// rowState is the engine state that a seek needs to reconstruct without replaying
// every row from the start: the tempo/divisor/volume/pan in effect at the start of
// a given (pattern, row), and the elapsed playback time up to that row.
type rowState struct {
	tempo   uint8
	divisor uint8
	volume  uint8
	pan     [tracker.NumChannels]uint8
	time    float64 // seconds elapsed to reach this row
}

// stateTable maps every (patternIndex, row) the song actually visits, in playback
// order, to the rowState in effect there — built once per song (or on structural
// edit) so SetTime/SetPosition/SongLength are O(1) lookups instead of a full replay.
type stateTable struct {
	entries []rowState
	// rowIndex[p] is the offset into entries of pattern p's row 0.
	rowIndex []int
}

// buildStateTable walks every pattern in song order once, propagating tempo/pan/
// volume/elapsed-time the same way the live engine would encounter them, and
// records a rowState per row. Jump/break effects are not followed here: the state
// table describes the song's patterns in array order, matching spec.md's model of
// sequential pattern playback (there is no separate order list to branch through).
func buildStateTable(song *tracker.Song) *stateTable {
	st := &stateTable{rowIndex: make([]int, len(song.Patterns))}

	tempo, divisor, volume := song.Tempo, song.Divisor, song.GlobalVolume
	var pan [tracker.NumChannels]uint8
	for i := range pan {
		pan[i] = song.Channels[i].Pan
	}
	elapsed := 0.0

	for pi, pat := range song.Patterns {
		st.rowIndex[pi] = len(st.entries)
		for _, row := range pat.Rows {
			for ch, cell := range row {
				switch cell.Fx {
				case tracker.FxTempo:
					if cell.FxData == 0 {
						tempo = 1
					} else {
						tempo = cell.FxData
					}
				case tracker.FxPanSet:
					pan[ch] = cell.FxData
				}
			}
			st.entries = append(st.entries, rowState{
				tempo: tempo, divisor: divisor, volume: volume, pan: pan, time: elapsed,
			})
			elapsed += rowDuration(tempo, divisor)
		}
	}
	return st
}

// rowDuration is the wall-clock length of one row at the given tempo/divisor,
// mirroring UpdateTiming's `ticksPerSecond = tempo*2/5` relationship between BPM
// and tracker rows (a "tick" here is one row, at `divisor` subdivisions per beat).
func rowDuration(tempo, divisor uint8) float64 {
	if tempo == 0 {
		tempo = 120
	}
	if divisor == 0 {
		divisor = 4
	}
	beatsPerSecond := float64(tempo) / 60
	rowsPerSecond := beatsPerSecond * float64(divisor)
	return 1 / rowsPerSecond
}

// lookup returns the rowState for (pattern, row), clamping out-of-range indices to
// the nearest valid row.
func (st *stateTable) lookup(pattern, row int) rowState {
	if len(st.entries) == 0 {
		return rowState{tempo: 120, divisor: 4, volume: 60}
	}
	if pattern < 0 {
		pattern = 0
	}
	if pattern >= len(st.rowIndex) {
		pattern = len(st.rowIndex) - 1
	}
	end := len(st.entries)
	if pattern+1 < len(st.rowIndex) {
		end = st.rowIndex[pattern+1]
	}
	idx := st.rowIndex[pattern] + row
	if idx >= end {
		idx = end - 1
	}
	if idx < st.rowIndex[pattern] {
		idx = st.rowIndex[pattern]
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(st.entries) {
		idx = len(st.entries) - 1
	}
	return st.entries[idx]
}

// findByTime returns the (pattern, row) whose rowState.time is the last one not
// after `seconds`, for SetTime seeks.
func (st *stateTable) findByTime(seconds float64) (pattern, row int) {
	if len(st.entries) == 0 {
		return 0, 0
	}
	lo, hi := 0, len(st.entries)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if st.entries[mid].time <= seconds {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for p := len(st.rowIndex) - 1; p >= 0; p-- {
		if lo >= st.rowIndex[p] {
			return p, lo - st.rowIndex[p]
		}
	}
	return 0, 0
}

// totalLength returns the song's total playback length in seconds.
func (st *stateTable) totalLength(lastRowDuration float64) float64 {
	if len(st.entries) == 0 {
		return 0
	}
	return st.entries[len(st.entries)-1].time + lastRowDuration
}
