package frag

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Stats is the accounting tuple tracked per allocator. Bytes includes
// every byte the variant charged (padding, headers, size-class rounding),
// not just what was requested.
type Stats struct {
	Bytes     int // Bytes currently allocated
	Count     int // Live allocations
	BytesPeak int // Highest Bytes observed
	CountPeak int // Highest Count observed
}

// Leaked reports whether the stats describe outstanding allocations.
func (s Stats) Leaked() bool {
	return s.Count != 0 || s.Bytes != 0
}

// afterAlloc returns s updated for one allocation charging n bytes.
func (s Stats) afterAlloc(n int) Stats {
	s.Count++
	if s.Count > s.CountPeak {
		s.CountPeak = s.Count
	}
	s.Bytes += n
	if s.Bytes > s.BytesPeak {
		s.BytesPeak = s.Bytes
	}
	return s
}

// afterFree returns s updated for one free releasing n bytes. The caller
// checks canFree first.
func (s Stats) afterFree(n int) Stats {
	s.Count--
	s.Bytes -= n
	return s
}

// afterResize returns s updated for a block resized in place.
func (s Stats) afterResize(oldCharged, newCharged int) Stats {
	s.Bytes += newCharged - oldCharged
	if s.Bytes > s.BytesPeak {
		s.BytesPeak = s.Bytes
	}
	return s
}

func (s Stats) canFree(n int) bool {
	return s.Count > 0 && s.Bytes >= n
}

// WriteJSON writes s as a JSON object.
func (s Stats) WriteJSON(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("bytes").Int(s.Bytes)
	obj.Name("count").Int(s.Count)
	obj.Name("bytes_peak").Int(s.BytesPeak)
	obj.Name("count_peak").Int(s.CountPeak)
	obj.End()
}
