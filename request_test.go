package releasecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name: "valid",
			req:  Request{Name: "token", PlatformVersion: "11.x"},
		},
		{
			name: "valid with optional fields",
			req:  Request{Name: "token", PlatformVersion: "11.x", Version: "11.x-1.0", Type: "module"},
		},
		{
			name:    "missing name",
			req:     Request{PlatformVersion: "11.x"},
			wantErr: ErrMissingName,
		},
		{
			name:    "missing platform version",
			req:     Request{Name: "token"},
			wantErr: ErrMissingPlatformVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequestCacheKey(t *testing.T) {
	req := Request{Name: "token", PlatformVersion: "11.x"}
	require.Equal(t, "11.x-token", req.CacheKey())
}

func TestRequestCacheKeyIgnoresSelectionInputs(t *testing.T) {
	base := Request{Name: "views", PlatformVersion: "10.x"}
	pinned := Request{Name: "views", PlatformVersion: "10.x", Version: "10.x-3.2", Type: "module"}
	require.Equal(t, base.CacheKey(), pinned.CacheKey())
}
