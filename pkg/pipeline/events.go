// ABOUTME: Out-of-band pipeline events as a closed set of tagged variants
// ABOUTME: Tags, segment declarations and end-of-stream markers
package pipeline

// Event is an out-of-band signal travelling with the data flow. The
// set of variants is closed; consumers switch over the concrete types.
type Event interface {
	isEvent()
}

// TagsEvent carries descriptive stream metadata. Empty fields mean the
// source had no value for them.
type TagsEvent struct {
	Title     string
	Artist    string
	Copyright string
}

// SegmentEvent declares the time range and rate of the buffers that
// follow. Stop < 0 means open-ended. Times are nanoseconds.
type SegmentEvent struct {
	Start int64
	Stop  int64
	Rate  float64
}

// EOSEvent marks the end of the stream. No buffers follow it.
type EOSEvent struct{}

func (TagsEvent) isEvent()    {}
func (SegmentEvent) isEvent() {}
func (EOSEvent) isEvent()     {}
