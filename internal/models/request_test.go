package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validHash = strings.Repeat("ab", 32)

func TestUpdateCheckRequest_Validate(t *testing.T) {
	req := UpdateCheckRequest{AppVersion: "1.0.0", Label: "1.0.3", ClientUniqueID: "device-1"}
	assert.NoError(t, req.Validate())

	err := (&UpdateCheckRequest{}).Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "required", verr.Fields["app_version"])
}

func TestUpdateCheckRequest_Normalize(t *testing.T) {
	req := UpdateCheckRequest{AppVersion: " 1.0.0 ", Label: "\t1.0.1\n", ClientUniqueID: " d "}
	req.Normalize()
	assert.Equal(t, "1.0.0", req.AppVersion)
	assert.Equal(t, "1.0.1", req.Label)
	assert.Equal(t, "d", req.ClientUniqueID)
}

func TestReleaseRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ReleaseRequest
		field   string
		wantErr bool
	}{
		{
			name: "valid",
			req:  ReleaseRequest{AppVersion: "1.0.1", DownloadURL: "https://cdn.example.com/b/" + validHash, PackageHash: validHash},
		},
		{
			name:    "missing version",
			req:     ReleaseRequest{DownloadURL: "https://cdn.example.com/x", PackageHash: validHash},
			field:   "app_version",
			wantErr: true,
		},
		{
			name:    "bad url",
			req:     ReleaseRequest{AppVersion: "1", DownloadURL: "not a url", PackageHash: validHash},
			field:   "download_url",
			wantErr: true,
		},
		{
			name:    "short hash",
			req:     ReleaseRequest{AppVersion: "1", DownloadURL: "https://x.io/a", PackageHash: "abc"},
			field:   "package_hash",
			wantErr: true,
		},
		{
			name:    "rollout above 100",
			req:     ReleaseRequest{AppVersion: "1", DownloadURL: "https://x.io/a", PackageHash: validHash, Rollout: ptrFloat(150)},
			field:   "rollout",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestReleaseRequest_ReleaseInfo(t *testing.T) {
	req := ReleaseRequest{AppVersion: "1", DownloadURL: "u", PackageHash: "h", Mandatory: true}
	info := req.ReleaseInfo()
	assert.True(t, info.Enabled)
	assert.True(t, info.Mandatory)
	assert.Nil(t, info.Rollout)

	disabled := false
	req.Enabled = &disabled
	req.Rollout = ptrFloat(5)
	info = req.ReleaseInfo()
	assert.False(t, info.Enabled)
	require.NotNil(t, info.Rollout)
	assert.Equal(t, 5.0, *info.Rollout)

	*req.Rollout = 50
	assert.Equal(t, 5.0, *info.Rollout)
}

func TestUpdateReleaseRequest_Validate(t *testing.T) {
	assert.NoError(t, (&UpdateReleaseRequest{}).Validate())
	assert.NoError(t, (&UpdateReleaseRequest{Rollout: ptrFloat(0)}).Validate())
	assert.Error(t, (&UpdateReleaseRequest{Rollout: ptrFloat(-1)}).Validate())
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "app_version", fieldName("AppVersion"))
	assert.Equal(t, "download_url", fieldName("DownloadURL"))
	assert.Equal(t, "rollout", fieldName("Rollout"))
}

func ptrFloat(v float64) *float64 { return &v }
