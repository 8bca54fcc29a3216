// Package chunk decides whether an audio file fits a provider's payload
// ceiling in one request and, when it does not, computes duration-based
// segment boundaries with a small overlap. Overlap means words spoken across
// a boundary land in at least one segment; the aggregated transcript simply
// concatenates segment text in order, so duplicated words at boundaries are
// an accepted limitation.
package chunk

import (
	"fmt"

	"github.com/voicepipe/voicepipe/internal/normalize"
	"github.com/voicepipe/voicepipe/internal/wav"
)

// Default planning parameters.
const (
	// DefaultSegmentSeconds is the nominal per-segment duration used as the
	// starting heuristic before size-based shrinking.
	DefaultSegmentSeconds = 240.0

	// DefaultOverlapSeconds is how far each segment after the first reaches
	// back before its nominal start.
	DefaultOverlapSeconds = 5.0

	// ceilingSafety keeps estimated segment sizes a little under the hard
	// payload ceiling to absorb container overhead and estimation error.
	ceilingSafety = 0.95
)

// Span is one planned slice of the source audio.
type Span struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
}

// DurationSeconds returns the span length.
func (s Span) DurationSeconds() float64 {
	return s.EndSeconds - s.StartSeconds
}

// Chunk is a span materialized as encoded bytes, immutable once created.
type Chunk struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
	Bytes        []byte
}

// Planner computes split boundaries for oversized files.
type Planner struct {
	SegmentSeconds float64
	OverlapSeconds float64
}

func NewPlanner() Planner {
	return Planner{
		SegmentSeconds: DefaultSegmentSeconds,
		OverlapSeconds: DefaultOverlapSeconds,
	}
}

// Plan returns the spans for a file of sizeBytes against a payload ceiling.
// A file at or under the ceiling, or one with unknown duration, yields a
// single whole-file span; the provider is allowed to reject the latter and
// that becomes a classified error downstream, not a planner failure. The
// plan never has zero spans for a non-empty source.
func (p Planner) Plan(sizeBytes, ceiling int64, durationSeconds float64) []Span {
	whole := []Span{{Index: 0, StartSeconds: 0, EndSeconds: durationSeconds}}
	if sizeBytes <= 0 {
		return whole
	}
	if ceiling <= 0 || sizeBytes <= ceiling {
		return whole
	}
	if durationSeconds <= 0 {
		return whole
	}

	seg := p.SegmentSeconds
	if seg <= 0 {
		seg = DefaultSegmentSeconds
	}
	overlap := p.OverlapSeconds
	if overlap < 0 {
		overlap = 0
	}

	// Shrink the nominal segment until the materialized span, which carries
	// the overlap on top of the segment, has an estimated encoded size under
	// the ceiling for this file's bytes-per-second. The file is over the
	// ceiling, so the budget is always shorter than the duration and the
	// plan always splits.
	bytesPerSecond := float64(sizeBytes) / durationSeconds
	budget := float64(ceiling) * ceilingSafety / bytesPerSecond
	if seg+overlap > budget {
		seg = budget - overlap
	}
	// Dense files can leave no room for the nominal overlap; resplit the
	// span budget so the reach back stays shorter than the segment and
	// spans keep advancing.
	if seg <= overlap {
		span := seg + overlap
		if span > budget {
			span = budget
		}
		seg = span * 2 / 3
		overlap = span / 3
	}

	var spans []Span
	for i := 0; ; i++ {
		nominalStart := float64(i) * seg
		if nominalStart >= durationSeconds {
			break
		}
		start := nominalStart
		if i > 0 && start > overlap {
			start -= overlap
		}
		end := nominalStart + seg
		if end > durationSeconds {
			end = durationSeconds
		}
		spans = append(spans, Span{Index: i, StartSeconds: start, EndSeconds: end})
		if end >= durationSeconds {
			break
		}
	}
	return spans
}

// Split divides a span into two overlapping halves, used when a provider
// rejects the materialized chunk as too large.
func (p Planner) Split(s Span) []Span {
	half := s.DurationSeconds() / 2
	mid := s.StartSeconds + half
	overlap := p.OverlapSeconds
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= half {
		overlap = half / 2
	}
	secondStart := mid - overlap
	return []Span{
		{Index: 0, StartSeconds: s.StartSeconds, EndSeconds: mid},
		{Index: 1, StartSeconds: secondStart, EndSeconds: s.EndSeconds},
	}
}

// Cut materializes spans from decoded mono audio, re-encoding each slice as
// a standalone WAV payload.
func Cut(audio *normalize.Audio, spans []Span) ([]Chunk, error) {
	if audio == nil || len(audio.Channels) != 1 {
		return nil, fmt.Errorf("cut requires decoded mono audio")
	}
	samples := audio.Channels[0]
	rate := audio.SampleRate

	chunks := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		start := int(span.StartSeconds * float64(rate))
		end := int(span.EndSeconds * float64(rate))
		if start < 0 {
			start = 0
		}
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			return nil, fmt.Errorf("span %d is empty (%.2fs-%.2fs)", span.Index, span.StartSeconds, span.EndSeconds)
		}

		slice := make([]float32, end-start)
		copy(slice, samples[start:end])
		encoded, err := wav.Encode([][]float32{slice}, rate)
		if err != nil {
			return nil, fmt.Errorf("encode span %d: %w", span.Index, err)
		}
		chunks = append(chunks, Chunk{
			Index:        span.Index,
			StartSeconds: span.StartSeconds,
			EndSeconds:   span.EndSeconds,
			Bytes:        encoded,
		})
	}
	return chunks, nil
}
