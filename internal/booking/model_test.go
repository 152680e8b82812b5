package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotIdentityValidate(t *testing.T) {
	valid := SlotIdentity{BikeID: "BIKE-0001", Date: "2026-09-14", StartTime: "09:00", EndTime: "10:00"}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*SlotIdentity)
	}{
		{"empty bike", func(id *SlotIdentity) { id.BikeID = "" }},
		{"bad date format", func(id *SlotIdentity) { id.Date = "14/09/2026" }},
		{"nonexistent date", func(id *SlotIdentity) { id.Date = "2026-02-30" }},
		{"bad start time", func(id *SlotIdentity) { id.StartTime = "9am" }},
		{"bad end time", func(id *SlotIdentity) { id.EndTime = "25:00" }},
		{"zero-length range", func(id *SlotIdentity) { id.EndTime = id.StartTime }},
		{"inverted range", func(id *SlotIdentity) { id.StartTime, id.EndTime = id.EndTime, id.StartTime }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := valid
			tc.mutate(&id)
			assert.ErrorIs(t, id.Validate(), ErrInvalidInput)
		})
	}
}

func TestSlotIdentityIgnoresLocation(t *testing.T) {
	a := Slot{BikeID: "BIKE-0001", Date: "2026-09-14", StartTime: "09:00", EndTime: "10:00", Location: "Harbor Station"}
	b := Slot{BikeID: "BIKE-0001", Date: "2026-09-14", StartTime: "09:00", EndTime: "10:00", Location: "Market Square"}
	assert.Equal(t, a.Identity(), b.Identity())
}
