package library

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSeriesFolder replaces a series name that sanitizes to nothing
const DefaultSeriesFolder = "Unknown_Series"

// timestampLayout stamps stored file names
const timestampLayout = "20060102_150405"

var (
	episodePattern  = regexp.MustCompile(`^(.+?)[ ._-]*[Ss](\d{1,3})[ ._-]*[Ee](\d{1,3})`)
	separatorRun    = regexp.MustCompile(`[ ._-]+`)
	forbiddenChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// stripMarks folds accented letters to their base letter (é -> e)
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// EpisodeInfo is series identity inferred from a file name
type EpisodeInfo struct {
	SeriesName string
	Season     int
	Episode    int
}

// ParseEpisode infers series, season and episode from names like
// "Show.S01E02.mp4" or "My Show - s2 e10.mkv". It reports false for
// anything that does not look like an episode.
func ParseEpisode(filename string) (EpisodeInfo, bool) {
	base := filepath.Base(filename)
	m := episodePattern.FindStringSubmatch(base)
	if m == nil {
		return EpisodeInfo{}, false
	}

	name := strings.TrimSpace(separatorRun.ReplaceAllString(m[1], " "))
	if name == "" {
		return EpisodeInfo{}, false
	}
	season, err := strconv.Atoi(m[2])
	if err != nil {
		return EpisodeInfo{}, false
	}
	episode, err := strconv.Atoi(m[3])
	if err != nil {
		return EpisodeInfo{}, false
	}

	return EpisodeInfo{SeriesName: name, Season: season, Episode: episode}, true
}

// SanitizeFolderName turns a series name into a safe directory name
func SanitizeFolderName(name string) string {
	name = strings.TrimSpace(name)
	name = forbiddenChars.ReplaceAllString(name, "_")
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		return DefaultSeriesFolder
	}
	return name
}

// SecureFilename reduces an uploaded file name to a safe base name. Names that
// reduce to nothing get a random one so two uploads never collide on "".
func SecureFilename(name string) string {
	// clients may send full paths, from either OS
	name = name[strings.LastIndexAny(name, `/\`)+1:]

	if folded, _, err := transform.String(stripMarks, name); err == nil {
		name = folded
	}

	var b strings.Builder
	for _, r := range name {
		if r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	name = whitespaceRun.ReplaceAllString(b.String(), "_")
	name = unsafeFileChars.ReplaceAllString(name, "")

	ext := filepath.Ext(name)
	stem := strings.Trim(strings.TrimSuffix(name, ext), "._")
	if stem == "" {
		return uuid.NewString() + strings.ToLower(ext)
	}
	return stem + ext
}

// Timestamp formats t the way stored file names are stamped
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// EpisodeCode renders season and episode as S01E02
func EpisodeCode(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

// EpisodeTitle is the default title of an episode
func EpisodeTitle(series string, season, episode int) string {
	return series + " " + EpisodeCode(season, episode)
}

// MovieTitle is the default title of a standalone movie: the file stem with separators as spaces
func MovieTitle(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	title := strings.TrimSpace(separatorRun.ReplaceAllString(stem, " "))
	if title == "" {
		return "Untitled"
	}
	return title
}

// Extension returns the lower-cased extension of name without the dot
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// AllowedExtension reports whether name carries one of the allowed extensions
func AllowedExtension(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}
