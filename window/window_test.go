package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Unix(1651129201, 0).UTC()

func TestFixed_AssignWindows(t *testing.T) {
	tests := []struct {
		name      string
		length    time.Duration
		eventTime time.Time
		want      []Window
	}{
		{
			name:      "minute",
			length:    time.Minute,
			eventTime: baseTime,
			want: []Window{
				{Start: time.Unix(1651129200, 0).UTC(), End: time.Unix(1651129260, 0).UTC()},
			},
		},
		{
			name:      "hour",
			length:    time.Hour,
			eventTime: baseTime,
			want: []Window{
				{Start: time.Unix(1651129200, 0).UTC(), End: time.Unix(1651129200+3600, 0).UTC()},
			},
		},
		{
			name:      "boundary_goes_right",
			length:    time.Minute,
			eventTime: time.Unix(1651129260, 0).UTC(),
			want: []Window{
				{Start: time.Unix(1651129260, 0).UTC(), End: time.Unix(1651129320, 0).UTC()},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFixed(tt.length)
			got := f.AssignWindows(tt.eventTime)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Start.Equal(got[i].Start))
				assert.True(t, tt.want[i].End.Equal(got[i].End))
			}
		})
	}
}

// Assigning the same element twice must yield the same window set.
func TestFixed_AssignWindowsIdempotent(t *testing.T) {
	f := NewFixed(time.Second)
	first := f.AssignWindows(baseTime)
	second := f.AssignWindows(baseTime)
	assert.Equal(t, first, second)
}

func TestSliding_AssignWindows(t *testing.T) {
	s := NewSliding(time.Minute, 20*time.Second)
	got := s.AssignWindows(baseTime)

	// 60s length with a 20s slide puts every element in three windows.
	require.Len(t, got, 3)
	for _, w := range got {
		assert.True(t, w.Covers(baseTime), "window %v should cover the event time", w)
		assert.Equal(t, time.Minute, w.End.Sub(w.Start))
	}
	// most recent window first
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Start.Before(got[i-1].Start))
	}

	assert.Equal(t, got, s.AssignWindows(baseTime))
}

func TestSession_AssignWindows(t *testing.T) {
	s := NewSession(30 * time.Second)
	got := s.AssignWindows(baseTime)
	require.Len(t, got, 1)
	assert.True(t, baseTime.Equal(got[0].Start))
	assert.True(t, baseTime.Add(30*time.Second).Equal(got[0].End))
}

func TestSession_MergeWindows(t *testing.T) {
	s := NewSession(time.Second)
	at := func(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

	tests := []struct {
		name   string
		active []Window
		want   []Merge
	}{
		{
			name:   "disjoint",
			active: []Window{{at(0), at(100)}, {at(200), at(300)}},
			want:   nil,
		},
		{
			name:   "two_overlapping",
			active: []Window{{at(0), at(100)}, {at(80), at(150)}},
			want: []Merge{
				{Sources: []Window{{at(0), at(100)}, {at(80), at(150)}}, Target: Window{at(0), at(150)}},
			},
		},
		{
			name:   "covered_window_kept_as_target",
			active: []Window{{at(0), at(300)}, {at(50), at(100)}},
			want: []Merge{
				{Sources: []Window{{at(50), at(100)}}, Target: Window{at(0), at(300)}},
			},
		},
		{
			name: "transitive_chain",
			active: []Window{
				{at(0), at(100)}, {at(90), at(200)}, {at(190), at(280)},
			},
			want: []Merge{
				{
					Sources: []Window{{at(0), at(100)}, {at(90), at(200)}, {at(190), at(280)}},
					Target:  Window{at(0), at(280)},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.MergeWindows(tt.active))
		})
	}
}

func TestSession_MergeWindowsNeverListsTargetAsSource(t *testing.T) {
	s := NewSession(time.Second)
	at := func(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
	active := []Window{{at(0), at(100)}, {at(80), at(150)}, {at(400), at(500)}, {at(450), at(600)}}

	for _, m := range s.MergeWindows(active) {
		for _, src := range m.Sources {
			assert.NotEqual(t, m.Target, src)
		}
	}
}

func TestGlobal_AssignWindows(t *testing.T) {
	g := NewGlobal()
	w := g.AssignWindows(baseTime)
	require.Len(t, w, 1)
	assert.True(t, w[0].Covers(baseTime))
	assert.True(t, w[0].End.Equal(EndOfTime))
}

func TestCompare(t *testing.T) {
	at := func(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
	a := Window{at(0), at(100)}
	b := Window{at(0), at(200)}
	c := Window{at(50), at(60)}

	assert.Negative(t, Compare(a, b))
	assert.Positive(t, Compare(c, a))
	assert.Zero(t, Compare(a, a))
}

func TestWindow_CoversAndOverlaps(t *testing.T) {
	at := func(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
	w := Window{at(100), at(200)}

	assert.True(t, w.Covers(at(100)))
	assert.False(t, w.Covers(at(200)), "end bound is exclusive")
	assert.True(t, w.Overlaps(Window{at(150), at(300)}))
	assert.False(t, w.Overlaps(Window{at(200), at(300)}))
	assert.Equal(t, Window{at(50), at(300)}, w.Span(Window{at(50), at(300)}))
}

func TestConstructorsRejectNonPositiveDurations(t *testing.T) {
	tests := []struct {
		name  string
		build func()
	}{
		{"fixed_zero_length", func() { NewFixed(0) }},
		{"fixed_negative_length", func() { NewFixed(-time.Second) }},
		{"sliding_zero_slide", func() { NewSliding(time.Second, 0) }},
		{"sliding_zero_length", func() { NewSliding(0, time.Second) }},
		{"session_zero_gap", func() { NewSession(0) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, tc.build)
		})
	}
}
