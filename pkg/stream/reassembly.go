package stream

import "sort"

// segment is one contiguous, gap-free run of received bytes at a known
// absolute stream offset.
type segment struct {
	offset uint64
	data   []byte
}

func (s segment) end() uint64 { return s.offset + uint64(len(s.data)) }

// Reassembler orders received STREAM frame fragments by offset and
// exposes the contiguous prefix starting at the next unread offset.
// Overlapping or duplicate bytes keep the first-seen copy, per the data
// model.
type Reassembler struct {
	segments   []segment // sorted, non-overlapping, gap-possible
	nextRead   uint64
}

// Insert adds bytes received at offset, trimming any overlap with
// already-held data so the first-seen copy always wins.
func (r *Reassembler) Insert(offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	end := offset + uint64(len(data))
	if end <= r.nextRead {
		return // entirely already consumed
	}
	if offset < r.nextRead {
		trim := r.nextRead - offset
		data = data[trim:]
		offset = r.nextRead
	}

	i := sort.Search(len(r.segments), func(i int) bool { return r.segments[i].offset >= offset })

	// Trim the new fragment against the segment immediately before it,
	// if it overlaps the new fragment's start.
	if i > 0 {
		prev := r.segments[i-1]
		if prev.end() > offset {
			if prev.end() >= end {
				return // fully covered already
			}
			trim := prev.end() - offset
			data = data[trim:]
			offset = prev.end()
		}
	}
	end = offset + uint64(len(data))

	// Trim the new fragment against every following segment it
	// overlaps, keeping their first-seen bytes; any bytes past such a
	// segment are inserted separately once this part is in place.
	for i < len(r.segments) && r.segments[i].offset < end {
		next := r.segments[i]
		if next.offset <= offset {
			if next.end() >= end {
				// New fragment is a subset of an existing one.
				return
			}
			data = data[next.end()-offset:]
			offset = next.end()
			i++
			continue
		}
		if next.end() < end {
			defer r.Insert(next.end(), data[next.end()-offset:])
		}
		data = data[:next.offset-offset]
		end = next.offset
		break
	}
	if len(data) == 0 {
		return
	}

	newSeg := segment{offset: offset, data: data}
	r.segments = append(r.segments, segment{})
	copy(r.segments[i+1:], r.segments[i:])
	r.segments[i] = newSeg
	r.coalesce()
}

// coalesce merges adjacent segments that now abut.
func (r *Reassembler) coalesce() {
	out := r.segments[:0]
	for _, s := range r.segments {
		if len(out) > 0 && out[len(out)-1].end() == s.offset {
			out[len(out)-1].data = append(out[len(out)-1].data, s.data...)
			continue
		}
		out = append(out, s)
	}
	r.segments = out
}

// ReadContiguous returns (and consumes) every byte available starting at
// the current read offset with no gap, advancing nextRead by the amount
// returned.
func (r *Reassembler) ReadContiguous() []byte {
	if len(r.segments) == 0 || r.segments[0].offset != r.nextRead {
		return nil
	}
	seg := r.segments[0]
	r.segments = r.segments[1:]
	r.nextRead += uint64(len(seg.data))
	return seg.data
}

// NextReadOffset returns the next absolute offset ReadContiguous will
// start from.
func (r *Reassembler) NextReadOffset() uint64 { return r.nextRead }

// ContiguousThrough returns the highest absolute offset reachable from
// nextRead with no gap in between, i.e. how far ReadContiguous could
// drain right now without the caller actually calling it. Segments are
// kept coalesced, so the run starting at nextRead (if any) is always a
// single entry.
func (r *Reassembler) ContiguousThrough() uint64 {
	if len(r.segments) == 0 || r.segments[0].offset != r.nextRead {
		return r.nextRead
	}
	return r.segments[0].end()
}

// HighestByteSeen returns the highest absolute offset (exclusive) of any
// byte buffered so far, used to validate a FIN or RESET_STREAM final
// size against data already received.
func (r *Reassembler) HighestByteSeen() uint64 {
	if len(r.segments) == 0 {
		return r.nextRead
	}
	return r.segments[len(r.segments)-1].end()
}
