package resolver

import (
	"sort"
	"strings"
	"time"

	"github.com/Qiheena/playernix/pkg/provider"
)

// Weights are the additive relevance scoring weights. They are empirically
// chosen and tunable; treat the defaults as a starting point, not truth.
type Weights struct {
	TopicChannel    int // auto-generated "<artist> - Topic" channel
	OfficialAudio   int // "official audio" / lyric marker in title
	LabelChannel    int // known music-label channel naming convention
	OfficialVideo   int // "official video" marker in title
	VerifiedChannel int
	QueryInTitle    int // case-insensitive substring match
	QualityMarker   int
	Popular         int
	SaneDuration    int

	PopularViews int64         // views at or above which Popular applies
	MinDuration  time.Duration // shortest duration considered sane
}

// DefaultWeights returns the stock scoring weights.
func DefaultWeights() Weights {
	return Weights{
		TopicChannel:    150,
		OfficialAudio:   120,
		LabelChannel:    110,
		OfficialVideo:   90,
		VerifiedChannel: 60,
		QueryInTitle:    50,
		QualityMarker:   30,
		Popular:         20,
		SaneDuration:    10,
		PopularViews:    1_000_000,
		MinDuration:     60 * time.Second,
	}
}

var qualityMarkers = []string{"hd", "hq", "4k", "high quality", "remaster"}

var labelSuffixes = []string{"vevo", "records", "recordings", "official"}

// ScoreResult computes the relevance score for one raw result. Pure: no
// network, no state, deterministic for identical inputs.
func ScoreResult(w Weights, query string, r provider.RawResult) int {
	score := 0
	title := strings.ToLower(r.Title)
	channel := strings.ToLower(r.Channel)

	if strings.HasSuffix(channel, " - topic") {
		score += w.TopicChannel
	}
	if strings.Contains(title, "official audio") ||
		strings.Contains(title, "official lyric") ||
		strings.Contains(title, "lyric video") {
		score += w.OfficialAudio
	}
	for _, suffix := range labelSuffixes {
		if strings.HasSuffix(channel, suffix) {
			score += w.LabelChannel
			break
		}
	}
	if strings.Contains(title, "official video") ||
		strings.Contains(title, "official music video") {
		score += w.OfficialVideo
	}
	if r.Verified {
		score += w.VerifiedChannel
	}
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(title, q) {
		score += w.QueryInTitle
	}
	for _, marker := range qualityMarkers {
		if strings.Contains(title, marker) {
			score += w.QualityMarker
			break
		}
	}
	if r.Views >= w.PopularViews {
		score += w.Popular
	}
	if r.Duration >= w.MinDuration {
		score += w.SaneDuration
	}

	return score
}

// RankCandidates orders candidates descending by score. The sort is stable,
// so ties keep the original provider order.
func RankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}
