package valueobjects

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "memorymap-backend/pkg/errors"
)

func TestNewLocation(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{"valid", 41.0082, 28.9784, false},
		{"boundary", -90, 180, false},
		{"zero is valid but not captured", 0, 0, false},
		{"latitude too high", 90.1, 0, true},
		{"longitude too low", 0, -180.5, true},
		{"nan", math.NaN(), 1, true},
		{"inf", 1, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := NewLocation(tt.lat, tt.lng)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationOutOfRange))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, loc.Lat())
			assert.Equal(t, tt.lng, loc.Lng())
		})
	}
}

func TestLocation_IsCaptured(t *testing.T) {
	origin, _ := NewLocation(0, 0)
	equator, _ := NewLocation(0, 12.5)
	meridian, _ := NewLocation(51.4, 0)

	assert.False(t, origin.IsCaptured())
	assert.True(t, equator.IsCaptured())
	assert.True(t, meridian.IsCaptured())
}

func TestParseCalendarDate(t *testing.T) {
	d, err := ParseCalendarDate("10/05/2024")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.May, d.Month())
	assert.Equal(t, 10, d.Day())
	assert.Equal(t, "10/05/2024", d.String())

	_, err = ParseCalendarDate("2024-05-10")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = ParseCalendarDate("30/02/2024")
	assert.Error(t, err)
}

func TestCalendarDate_YearsEarlier(t *testing.T) {
	tests := []struct {
		today string
		want  string
	}{
		{"10/05/2024", "10/05/2023"},
		{"29/02/2024", "28/02/2023"},
		{"28/02/2025", "28/02/2024"},
		{"01/03/2025", "01/03/2024"},
		{"31/12/2000", "31/12/1999"},
	}

	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			today, err := ParseCalendarDate(tt.today)
			require.NoError(t, err)

			assert.Equal(t, tt.want, today.YearsEarlier(1).String())
		})
	}
}

func TestNewCalendarDate(t *testing.T) {
	_, err := NewCalendarDate(2023, time.February, 29)
	assert.Error(t, err)

	d, err := NewCalendarDate(2024, time.February, 29)
	require.NoError(t, err)
	assert.Equal(t, "29/02/2024", d.String())
	assert.True(t, d.Equals(DateOf(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))))
}
