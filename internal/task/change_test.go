package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateChange(t *testing.T) {
	d1 := DatePtr(2026, 3, 1)
	d2 := DatePtr(2026, 3, 2)

	assert.Equal(t, Unchanged, DateChange(d1, DatePtr(2026, 3, 1)).Kind())
	assert.Equal(t, Unchanged, DateChange(nil, nil).Kind())
	assert.Equal(t, Cleared, DateChange(d1, nil).Kind())

	c := DateChange(d1, d2)
	assert.Equal(t, Set, c.Kind())
	assert.Equal(t, *d2, c.Value())
}

func TestMetadataUpdateApplyTo(t *testing.T) {
	tk := Task{Title: "t", Due: DatePtr(2026, 1, 1), Start: DatePtr(2025, 12, 30), Priority: PriorityHigh}

	u := MetadataUpdate{
		Due:      SetTo(Date(2026, 1, 5)),
		Start:    Clear[time.Time](),
		Priority: SetTo(PriorityLow),
	}
	assert.False(t, u.Empty())

	out := u.ApplyTo(tk)
	assert.Equal(t, "2026-01-05", FormatDate(out.Due))
	assert.Nil(t, out.Start)
	assert.Nil(t, out.Scheduled)
	assert.Equal(t, PriorityLow, out.Priority)

	// The input is left untouched.
	assert.Equal(t, "2026-01-01", FormatDate(tk.Due))
	assert.NotNil(t, tk.Start)
}

func TestMetadataUpdateZeroValueIsEmpty(t *testing.T) {
	var u MetadataUpdate
	assert.True(t, u.Empty())
}

func TestParsePriorityRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityNone, PriorityLow, PriorityMedium, PriorityHigh} {
		assert.Equal(t, p, ParsePriority(p.String()))
	}
	assert.Equal(t, PriorityNone, ParsePriority("urgent"))
}
