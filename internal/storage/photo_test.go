package storage

import (
	"strings"
	"testing"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoto(t *testing.T) {
	cases := []struct {
		name        string
		data        []byte
		contentType string
		wantMsg     string
	}{
		{"empty payload", nil, "image/png", MsgEmptyFile},
		{"text file", []byte("hello"), "text/plain", MsgNotAnImage},
		{"missing content type", []byte("hello"), "", MsgNotAnImage},
		{"png", []byte{0x89, 'P', 'N', 'G'}, "image/png", ""},
		{"uppercase jpeg", []byte{0xff, 0xd8}, "IMAGE/JPEG", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePhoto(tc.data, tc.contentType)
			if tc.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tc.wantMsg, apperr.Message(err, ""))
		})
	}
}

func TestObjectName(t *testing.T) {
	name := ObjectName("ferias na praia.jpg")
	prefix, rest, ok := strings.Cut(name, "_")
	require.True(t, ok)
	_, err := uuid.Parse(prefix)
	assert.NoError(t, err)
	assert.Equal(t, "ferias_na_praia.jpg", rest)

	assert.NotEqual(t, ObjectName("a.png"), ObjectName("a.png"))
	assert.True(t, strings.HasSuffix(ObjectName(`C:\fotos\b.png`), "_b.png"))
	assert.True(t, strings.HasSuffix(ObjectName(""), "_foto"))
	assert.True(t, strings.HasSuffix(ObjectName("../../etc/passwd"), "_passwd"))
}

func TestObjectNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://x.supabase.co/storage/v1/object/public/atividade/atividade/abc_foto.png": "abc_foto.png",
		"https://cdn.example.com/atividade/abc_foto.png?v=2":                              "abc_foto.png",
		"abc_foto.png": "abc_foto.png",
		"https://cdn.example.com/atividade/abc%20foto.png": "abc foto.png",
		"": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ObjectNameFromURL(in), "input %q", in)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.StorageConfig{Driver: config.StorageDriverSupabase, SupabaseURL: "https://x.supabase.co", Bucket: "atividade"})
	require.NoError(t, err)
	assert.IsType(t, &SupabaseClient{}, s)

	s, err = New(config.StorageConfig{Driver: config.StorageDriverS3, S3Endpoint: "localhost:9000", Bucket: "atividade"})
	require.NoError(t, err)
	assert.IsType(t, &S3Client{}, s)

	_, err = New(config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
