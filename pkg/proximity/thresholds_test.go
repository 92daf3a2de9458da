package proximity

import (
	"math"
	"sync"
	"testing"

	"github.com/grovetools/tether/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name string
		in   Thresholds
		code errors.ErrorCode
	}{
		{"valid", Thresholds{100, 200, 300}, ""},
		{"zero safe", Thresholds{0, 1, 2}, ""},
		{"at max", Thresholds{1, 2, MaxThreshold}, ""},
		{"negative", Thresholds{-1, 200, 300}, errors.ErrCodeThresholdOutOfRange},
		{"above max", Thresholds{100, 200, MaxThreshold + 1}, errors.ErrCodeThresholdOutOfRange},
		{"nan", Thresholds{math.NaN(), 200, 300}, errors.ErrCodeThresholdOutOfRange},
		{"reversed", Thresholds{300, 200, 100}, errors.ErrCodeThresholdOutOfOrder},
		{"equal", Thresholds{100, 100, 300}, errors.ErrCodeThresholdOutOfOrder},
		{"warning equals danger", Thresholds{100, 300, 300}, errors.ErrCodeThresholdOutOfOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThresholds(tt.in)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestThresholdStore(t *testing.T) {
	store, err := NewThresholdStore(Thresholds{100, 200, 300})
	require.NoError(t, err)

	err = store.Set(Thresholds{300, 200, 100})
	assert.True(t, errors.Is(err, errors.ErrCodeThresholdOutOfOrder))
	assert.Equal(t, Thresholds{100, 200, 300}, store.Load(), "rejected update must not change the active triple")

	require.NoError(t, store.Set(Thresholds{50, 150, 250}))
	assert.Equal(t, Thresholds{50, 150, 250}, store.Load())

	_, err = NewThresholdStore(Thresholds{-5, 1, 2})
	assert.Error(t, err)
}

func TestThresholdStoreConcurrentReaders(t *testing.T) {
	a := Thresholds{100, 200, 300}
	b := Thresholds{10, 20, 30}
	store, err := NewThresholdStore(a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := store.Load()
				if got != a && got != b {
					t.Errorf("observed torn thresholds: %+v", got)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			_ = store.Set(b)
		} else {
			_ = store.Set(a)
		}
	}
	close(stop)
	wg.Wait()
}
