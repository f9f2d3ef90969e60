package library

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEpisode(t *testing.T) {
	tests := []struct {
		filename string
		want     EpisodeInfo
		ok       bool
	}{
		{"Show.S01E02.mp4", EpisodeInfo{"Show", 1, 2}, true},
		{"The.Long.Show.s03e10.720p.mkv", EpisodeInfo{"The Long Show", 3, 10}, true},
		{"My Show - S2 E5.avi", EpisodeInfo{"My Show", 2, 5}, true},
		{"my_show_S100E001.mov", EpisodeInfo{"my show", 100, 1}, true},
		{"uploads/Show.S01E02.mp4", EpisodeInfo{"Show", 1, 2}, true},
		{"Heat.1995.mp4", EpisodeInfo{}, false},
		{"S01E01.mp4", EpisodeInfo{}, false},
		{"Show.S1234E01.mp4", EpisodeInfo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := ParseEpisode(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFolderName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Show", "Show"},
		{"My Show", "My_Show"},
		{`Who: Are/You? <2>`, "Who__Are_You___2_"},
		{"  Spaced   Out  ", "Spaced_Out"},
		{"...", DefaultSeriesFolder},
		{"", DefaultSeriesFolder},
		{"Trailing.", "Trailing"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFolderName(tt.in), tt.in)
	}
}

func TestSecureFilename(t *testing.T) {
	assert.Equal(t, "My_Movie.mp4", SecureFilename("My Movie.mp4"))
	assert.Equal(t, "passwd", SecureFilename("../../etc/passwd"))
	assert.Equal(t, "video.mkv", SecureFilename(`C:\Users\me\video.mkv`))
	assert.Equal(t, "film.avi", SecureFilename("fïlm.avi"))

	random := SecureFilename("ビデオ.mp4")
	assert.True(t, strings.HasSuffix(random, ".mp4"))
	assert.Len(t, random, 36+4)
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "Show S01E02", EpisodeTitle("Show", 1, 2))
	assert.Equal(t, "S10E100", EpisodeCode(10, 100))
	assert.Equal(t, "The Big Movie", MovieTitle("The.Big_Movie.mp4"))
	assert.Equal(t, "Untitled", MovieTitle("....mp4"))
	assert.Equal(t, "20240102_030405", Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestAllowedExtension(t *testing.T) {
	allowed := []string{"mp4", "avi", "mkv", "mov", "wmv"}
	assert.True(t, AllowedExtension("a.MP4", allowed))
	assert.True(t, AllowedExtension("a.b.mkv", allowed))
	assert.False(t, AllowedExtension("a.exe", allowed))
	assert.False(t, AllowedExtension("mp4", allowed))
	assert.True(t, AllowedExtension("a.png", []string{".png"}))
}
