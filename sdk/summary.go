package converse

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

const (
	maxKeyTopics      = 5
	previewTurns      = 3
	previewRunes      = 100
	minTopicWordRunes = 4
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and or but in on at to for of with by is are was were been be
		have has had will would could should may might can i you he she it we they my your his her its
		our their me him us them this that these those`) {
		stopWords[w] = struct{}{}
	}
}

// Summarize derives the end-of-session digest from the session and its
// transcript. It is pure and safe to call from any goroutine.
func Summarize(session types.Session, turns []types.Turn, endedAt time.Time) types.Summary {
	var participant []string
	s := types.Summary{
		ParticipantName: session.ParticipantName,
		AgentName:       session.AgentName,
		DurationMinutes: durationMinutes(session.StartedAt, endedAt),
		StartedAt:       session.StartedAt,
		EndedAt:         endedAt,
		TotalTurns:      len(turns),
		Turns:           append([]types.Turn(nil), turns...),
	}
	for _, t := range turns {
		switch t.Speaker {
		case types.SpeakerParticipant:
			s.ParticipantTurns++
			participant = append(participant, t.Text)
		case types.SpeakerAgent:
			s.AgentTurns++
		}
	}
	s.KeyTopics = KeyTopics(participant, maxKeyTopics)
	s.Preview = previewOf(turns)
	return s
}

// durationMinutes rounds to the nearest whole minute and never goes negative.
func durationMinutes(start, end time.Time) int {
	if start.IsZero() || !end.After(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}

// KeyTopics returns the most frequent content words across texts: lower
// cased, whitespace separated, longer than three characters and not a stop
// word. Ties keep first-occurrence order.
func KeyTopics(texts []string, limit int) []types.TopicCount {
	words := strings.Fields(strings.ToLower(strings.Join(texts, " ")))

	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTopicWordRunes {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	topics := make([]types.TopicCount, 0, len(order))
	for _, w := range order {
		topics = append(topics, types.TopicCount{Word: w, Count: counts[w]})
	}
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].Count > topics[j].Count
	})
	if limit >= 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

func previewOf(turns []types.Turn) []types.TurnPreview {
	n := len(turns)
	if n > previewTurns {
		n = previewTurns
	}
	out := make([]types.TurnPreview, 0, n)
	for _, t := range turns[:n] {
		out = append(out, types.TurnPreview{Speaker: t.Speaker, Text: truncateRunes(t.Text, previewRunes)})
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}
