package firestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateFromData(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		want map[string]int
	}{
		{
			name: "int64 counters",
			data: map[string]interface{}{
				"month": "2024-02",
				"usage": map[string]interface{}{"aviationstack": int64(42)},
			},
			want: map[string]int{"aviationstack": 42},
		},
		{
			name: "float counters are rounded",
			data: map[string]interface{}{
				"month": "2024-02",
				"usage": map[string]interface{}{"aviationstack": 41.6},
			},
			want: map[string]int{"aviationstack": 42},
		},
		{
			name: "garbage counters dropped",
			data: map[string]interface{}{
				"month": "2024-02",
				"usage": map[string]interface{}{"aviationstack": "lots", "other": int64(-3)},
			},
			want: map[string]int{},
		},
		{
			name: "missing usage",
			data: map[string]interface{}{"month": "2024-02"},
			want: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := stateFromData(tt.data)
			assert.Equal(t, "2024-02", state.Month)
			assert.Equal(t, tt.want, state.Usage)
		})
	}
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}
