// Package mcstatus extracts player counts from the free-text answer a
// Minecraft server gives to its "list" console command.
package mcstatus

import (
	"regexp"
	"strconv"
	"strings"
)

// PlayerCount is the online/max pair of a server. A nil field means the
// query failed or the answer could not be read.
type PlayerCount struct {
	Online *int `json:"online"`
	Max    *int `json:"max"`
}

// Count returns a known PlayerCount.
func Count(online, max int) PlayerCount {
	return PlayerCount{Online: &online, Max: &max}
}

// Unknown returns a PlayerCount with both fields unset.
func Unknown() PlayerCount {
	return PlayerCount{}
}

// Known reports whether both fields are set.
func (c PlayerCount) Known() bool {
	return c.Online != nil && c.Max != nil
}

// String formats the count as "online/max", or "?" when unknown.
func (c PlayerCount) String() string {
	if !c.Known() {
		return "?"
	}
	return strconv.Itoa(*c.Online) + "/" + strconv.Itoa(*c.Max)
}

// Match names the pattern that produced a PlayerCount.
type Match int

const (
	MatchNone Match = iota
	MatchPlugin
	MatchVanilla
	// MatchFallback is a bare "<int>/<int>" found anywhere in the text and
	// is less trustworthy than the two phrase matches.
	MatchFallback
)

func (m Match) String() string {
	switch m {
	case MatchPlugin:
		return "plugin"
	case MatchVanilla:
		return "vanilla"
	case MatchFallback:
		return "fallback"
	default:
		return "none"
	}
}

var (
	ansiRe  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	colorRe = regexp.MustCompile(`(?i)§[0-9A-FK-OR]`)
)

// Clean removes terminal color escapes, § color codes and carriage returns.
func Clean(raw string) string {
	s := ansiRe.ReplaceAllString(raw, "")
	s = colorRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}

var patterns = []struct {
	match Match
	re    *regexp.Regexp
}{
	// "Online Players 0/16:" (Essentials style plugins)
	{MatchPlugin, regexp.MustCompile(`(?i)Online Players\s*(\d+)\s*/\s*(\d+)\s*:`)},
	// "There are 3 of a max of 20 players online: ..."
	{MatchVanilla, regexp.MustCompile(`(?i)There are\s+(\d+)\s+of a max of\s+(\d+)\s+players online`)},
	{MatchFallback, regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)},
}

// Parse returns the player count found in raw, or an unknown count.
func Parse(raw string) PlayerCount {
	c, _ := ParseMatch(raw)
	return c
}

// ParseMatch is Parse that also reports which pattern matched. Patterns are
// tried in order and the first hit wins. A fallback hit whose online value
// exceeds max is rejected.
func ParseMatch(raw string) (PlayerCount, Match) {
	s := Clean(raw)
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		online, err1 := strconv.Atoi(m[1])
		max, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			// out of int range
			continue
		}
		if p.match == MatchFallback && online > max {
			return Unknown(), MatchNone
		}
		return Count(online, max), p.match
	}
	return Unknown(), MatchNone
}
