package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusWireRoundTrip(t *testing.T) {
	flags := []StatusFlags{{}, {PostDone: true}, {PostErr: true, Wait: true}}
	for s := StatusPending; s <= StatusUnknown; s++ {
		for _, f := range flags {
			gotS, gotF, err := StatusFromWire(StatusToWire(s, f))
			require.NoError(t, err)
			assert.Equal(t, s, gotS)
			assert.Equal(t, f, gotF)
		}
	}
}

func TestStatusFromWire(t *testing.T) {
	tests := []struct {
		in      int32
		want    Status
		wantErr bool
	}{
		{in: 0, want: StatusNone},
		{in: WireRun, want: StatusRunning},
		{in: WireDone | WirePDone, want: StatusDone},
		{in: WireUnkwn | WireSSusp, want: StatusUnknown},
		{in: WirePend | WireRun, wantErr: true},
		{in: WirePErr, wantErr: true},
		{in: 0x400, wantErr: true},
	}
	for _, tt := range tests {
		got, _, err := StatusFromWire(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "wire %#x", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "wire %#x", tt.in)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusExited.Terminal())
	assert.False(t, StatusUnknown.Terminal())
	assert.True(t, StatusPendingSuspended.Suspended())
	assert.False(t, StatusPendingSuspended.Active())
	assert.True(t, StatusUserSuspended.Active())
	assert.True(t, StatusRunning.Active())
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(StatusSystemSuspended)
	require.NoError(t, err)
	assert.Equal(t, `"SSUSP"`, string(b))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"PSUSP"`), &s))
	assert.Equal(t, StatusPendingSuspended, s)
	assert.Error(t, json.Unmarshal([]byte(`"ZOMBIE"`), &s))
}
