package cloudinary

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicID(t *testing.T) {
	cases := []struct {
		folder string
		key    string
		want   string
	}{
		{folder: "science-fair", key: "P1/S1/1A/1700000000000000000-plan.pdf", want: "science-fair/P1/S1/1A/1700000000000000000-plan.pdf"},
		{folder: "/science-fair/", key: "/P1/plan.pdf/", want: "science-fair/P1/plan.pdf"},
		{folder: "", key: "P1/plan.pdf", want: "P1/plan.pdf"},
		{folder: "science-fair", key: "  ", want: ""},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, PublicID(tc.folder, tc.key), tc.key)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "fair"}, zerolog.Nop())
	require.Error(t, err)

	svc, err := New(Config{CloudName: "fair", APIKey: "key", APISecret: "secret", Folder: "/forms/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "forms", svc.folder)
}

func TestUploadRejectsEmptyKey(t *testing.T) {
	svc, err := New(Config{CloudName: "fair", APIKey: "key", APISecret: "secret"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), " ", strings.NewReader("%PDF-1.4"))
	require.Error(t, err)
}

func TestExistingAssetReadsRawResponse(t *testing.T) {
	var reused interface{} = map[string]interface{}{"public_id": "forms/P1/plan.pdf", "existing": true}
	var fresh interface{} = map[string]interface{}{"public_id": "forms/P1/plan.pdf", "existing": false}

	require.True(t, existingAsset(&uploader.UploadResult{Response: &reused}))
	require.True(t, existingAsset(&uploader.UploadResult{Response: reused}))
	require.False(t, existingAsset(&uploader.UploadResult{Response: &fresh}))
	require.False(t, existingAsset(&uploader.UploadResult{}))
	require.False(t, existingAsset(nil))
}
