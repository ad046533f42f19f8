// Package classify applies filename heuristics to decide whether a
// scanned file is a movie or a TV episode, and extracts the season and
// episode numbers or movie title/year from its name.
package classify

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ferrex/internal/model"
)

var titleCaser = cases.Title(language.Und)

// episodePatterns matches, in order of specificity, a show title plus
// season/episode numbers out of a filename or relative path.
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.*?)[.\s_-]+S(\d{1,2})E(\d{1,3})`),
	regexp.MustCompile(`(?i)^(.*?)[.\s_-]+(\d{1,2})x(\d{1,3})`),
	regexp.MustCompile(`(?i)^(.*?)[.\s_-]+[Ss](?:eason)?\s*(\d{1,2})\s*[Ee](?:pisode)?\s*(\d{1,3})`),
}

var yearPattern = regexp.MustCompile(`[\(\[]((?:19|20)\d{2})[\)\]]`)
var seasonDirPattern = regexp.MustCompile(`(?i)^season\s*0*(\d+)$`)
var cleanupPattern = regexp.MustCompile(`[.\s_-]+`)

// Result is the Scan actor's classification of one file.
type Result struct {
	Kind    model.MediaKindHint
	Title   string
	Year    int
	Season  int
	Episode int
}

// File classifies name (the file's base name, extension included)
// against the episode patterns, falling back to a movie title/year
// parse when no episode pattern matches.
func File(name string) Result {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	for _, re := range episodePatterns {
		m := re.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		season, _ := strconv.Atoi(m[2])
		episode, _ := strconv.Atoi(m[3])
		return Result{
			Kind:    model.MediaKindHintEpisode,
			Title:   cleanTitle(m[1]),
			Season:  season,
			Episode: episode,
		}
	}

	return movieFromName(stem)
}

func movieFromName(stem string) Result {
	year := 0
	title := stem
	if m := yearPattern.FindStringSubmatchIndex(stem); m != nil {
		if y, err := strconv.Atoi(stem[m[2]:m[3]]); err == nil {
			year = y
		}
		title = stem[:m[0]]
	}
	return Result{Kind: model.MediaKindHintMovie, Title: cleanTitle(title), Year: year}
}

func cleanTitle(raw string) string {
	cleaned := cleanupPattern.ReplaceAllString(strings.TrimSpace(raw), " ")
	return strings.TrimSpace(titleCaser.String(cleaned))
}

// SeriesRootHint derives a SeriesHint from a series root folder name.
func SeriesRootHint(folderName string) model.SeriesHint {
	result := movieFromName(folderName)
	return model.SeriesHint{
		Title: result.Title,
		Slug:  slugify(result.Title),
		Year:  result.Year,
	}
}

// SeasonNumber parses a season directory name ("Season 01") into its
// number, reporting ok=false if folderName isn't a season directory.
func SeasonNumber(folderName string) (int, bool) {
	m := seasonDirPattern.FindStringSubmatch(folderName)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func slugify(title string) string {
	lower := strings.ToLower(title)
	return cleanupPattern.ReplaceAllString(lower, "-")
}
