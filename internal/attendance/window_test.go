package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)

	tests := []struct {
		name       string
		start, end string
		wantErr    bool
	}{
		{name: "missing start", end: "2024-01-02", wantErr: true},
		{name: "missing end", start: "2024-01-02", wantErr: true},
		{name: "bad start", start: "02/01/2024", end: "2024-01-02", wantErr: true},
		{name: "bad end", start: "2024-01-02", end: "tomorrow", wantErr: true},
		{name: "inverted", start: "2024-01-03", end: "2024-01-02", wantErr: true},
		{name: "single day", start: "2024-01-02", end: "2024-01-02"},
		{name: "range", start: "2024-01-01", end: "2024-01-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWindow(tt.start, tt.end, kolkata)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, w.StartDate())
			assert.Equal(t, tt.end, w.EndDate())
		})
	}
}

func TestWindowBounds(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	w, err := NewWindow("2024-01-02", "2024-01-02", loc)
	require.NoError(t, err)

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, loc).UnixMilli()
	end := time.Date(2024, 1, 2, 23, 59, 59, int(999*time.Millisecond), loc).UnixMilli()
	assert.Equal(t, start, w.StartMillis())
	assert.Equal(t, end, w.EndMillis())

	assert.False(t, w.Contains(start-1))
	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(end))
	assert.False(t, w.Contains(end+1))
}
