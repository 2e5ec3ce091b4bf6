package frag

import (
	"fmt"
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// LeakReport is handed to Config.ReportLeakHandler. Allocs is populated
// only when detailed leak reports are enabled.
type LeakReport struct {
	Allocator string
	Stats     Stats
	Allocs    []DebugAllocRecord
}

func (r LeakReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "leak detected. allocator=%s, count=%d, size=%d", r.Allocator, r.Stats.Count, r.Stats.Bytes)
	for _, rec := range r.Allocs {
		fmt.Fprintf(&sb, "\n  %#x (%d bytes) allocated at %s", rec.Ptr, rec.Size, rec.Site)
	}
	return sb.String()
}

// WriteJSON writes the report as a JSON object.
func (r LeakReport) WriteJSON(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("allocator").String(r.Allocator)
	r.Stats.WriteJSON(obj.Name("stats"))
	// Array elements are written through w; the writer tracks separators.
	arr := obj.Name("allocs").Array()
	for _, rec := range r.Allocs {
		robj := w.Object()
		robj.Name("ptr").String(fmt.Sprintf("%#x", rec.Ptr))
		robj.Name("size").Int(rec.Size)
		robj.Name("file").String(rec.Site.File)
		robj.Name("line").Int(rec.Site.Line)
		robj.Name("func").String(rec.Site.Func)
		robj.End()
	}
	arr.End()
	obj.End()
}

// MarshalJSON implements json.Marshaler.
func (r LeakReport) MarshalJSON() ([]byte, error) {
	w := jwriter.NewWriter()
	r.WriteJSON(&w)
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
