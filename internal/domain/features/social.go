package features

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/passwatch/internal/domain/model"
)

// SignalReader reads matched social signals for one checkpoint in [from, to).
type SignalReader interface {
	Signals(ctx context.Context, checkpointID int64, from, to time.Time) ([]model.SocialSignal, error)
}

// Nested sub-windows counted inside the social lookback.
var subWindows = []int{1, 3, 6} //nolint:gochecknoglobals // fixed window layout

// MinSocialLookback is the shortest lookback; it must exceed every sub-window
// so the full-window keys stay distinct.
const MinSocialLookback = 7 * time.Hour

// SocialAggregator computes windowed statistics over social mentions.
type SocialAggregator struct {
	reader   SignalReader
	lookback time.Duration
	hours    int
}

// NewSocialAggregator returns an aggregator over a lookback of whole hours.
func NewSocialAggregator(r SignalReader, lookback time.Duration) (*SocialAggregator, error) {
	if lookback < time.Hour || lookback%time.Hour != 0 {
		return nil, fmt.Errorf("%w: social lookback %s must be a positive number of hours", ErrInvalidWindow, lookback)
	}
	if lookback < MinSocialLookback {
		return nil, fmt.Errorf("%w: social lookback %s must be at least %s", ErrInvalidWindow, lookback, MinSocialLookback)
	}
	return &SocialAggregator{reader: r, lookback: lookback, hours: int(lookback / time.Hour)}, nil
}

// Lookback returns the aggregation window.
func (a *SocialAggregator) Lookback() time.Duration { return a.lookback }

// Build aggregates signals posted in [ref-lookback, ref). An empty window
// yields the zero map with the same keys.
func (a *SocialAggregator) Build(ctx context.Context, checkpointID int64, ref time.Time) (Map, error) {
	signals, err := a.reader.Signals(ctx, checkpointID, ref.Add(-a.lookback), ref)
	if err != nil {
		return nil, fmt.Errorf("read signals for checkpoint %d: %w", checkpointID, err)
	}
	return a.aggregate(signals, ref), nil
}

func (a *SocialAggregator) key(name string) string {
	return fmt.Sprintf("%s_%dh", name, a.hours)
}

// Empty returns the cold-start map.
func (a *SocialAggregator) Empty() Map {
	m := Map{
		a.key("mentions_last"):      0,
		a.key("avg_sentiment"):      0,
		a.key("min_sentiment"):      0,
		a.key("max_sentiment"):      0,
		a.key("std_sentiment"):      0,
		a.key("closed_mentions"):    0,
		a.key("open_mentions"):      0,
		a.key("partial_mentions"):   0,
		a.key("avg_confidence"):     0,
		a.key("total_likes"):        0,
		a.key("total_comments"):     0,
		a.key("mention_rate"):       0,
		a.key("weighted_sentiment"): 0,
	}
	for _, h := range subWindows {
		m[fmt.Sprintf("mentions_last_%dh", h)] = 0
	}
	for _, src := range model.SocialSources() {
		m[a.key(src.String()+"_mentions")] = 0
	}
	return m
}

func (a *SocialAggregator) aggregate(signals []model.SocialSignal, ref time.Time) Map {
	m := a.Empty()
	// Records outside [start, ref) are ignored even if the reader returns them.
	var (
		n                 int
		sentiments, confs []float64
		wSentiment, wConf []float64
		likes, comments   int64
		byStatus          = map[model.Status]int{}
		bySource          = map[model.Source]int{}
		subCounts         = make([]int, len(subWindows))
		start             = ref.Add(-a.lookback)
	)
	for _, s := range signals {
		if !s.PostedAt.Before(ref) || s.PostedAt.Before(start) {
			continue
		}
		n++
		for i, h := range subWindows {
			if !s.PostedAt.Before(ref.Add(-time.Duration(h) * time.Hour)) {
				subCounts[i]++
			}
		}
		if s.SentimentScore != nil {
			sentiments = append(sentiments, *s.SentimentScore)
		}
		if s.Confidence != nil {
			confs = append(confs, *s.Confidence)
		}
		if s.SentimentScore != nil && s.Confidence != nil {
			wSentiment = append(wSentiment, *s.SentimentScore)
			wConf = append(wConf, *s.Confidence)
		}
		if s.InferredStatus != nil {
			byStatus[*s.InferredStatus]++
		}
		bySource[s.Source]++
		if s.Likes != nil {
			likes += *s.Likes
		}
		if s.Comments != nil {
			comments += *s.Comments
		}
	}
	if n == 0 {
		return m
	}

	m[a.key("mentions_last")] = float64(n)
	for i, h := range subWindows {
		m[fmt.Sprintf("mentions_last_%dh", h)] = float64(subCounts[i])
	}
	if len(sentiments) > 0 {
		mean, std := stat.PopMeanStdDev(sentiments, nil)
		m[a.key("avg_sentiment")] = mean
		m[a.key("std_sentiment")] = std
		m[a.key("min_sentiment")] = floats.Min(sentiments)
		m[a.key("max_sentiment")] = floats.Max(sentiments)
	}
	m[a.key("closed_mentions")] = float64(byStatus[model.StatusClosed])
	m[a.key("open_mentions")] = float64(byStatus[model.StatusOpen])
	m[a.key("partial_mentions")] = float64(byStatus[model.StatusPartial])
	if len(confs) > 0 {
		m[a.key("avg_confidence")] = stat.Mean(confs, nil)
	}
	for _, src := range model.SocialSources() {
		m[a.key(src.String()+"_mentions")] = float64(bySource[src])
	}
	m[a.key("total_likes")] = float64(likes)
	m[a.key("total_comments")] = float64(comments)
	m[a.key("mention_rate")] = float64(n) / float64(a.hours)
	if len(wConf) > 0 && floats.Sum(wConf) != 0 {
		m[a.key("weighted_sentiment")] = stat.Mean(wSentiment, wConf)
	}
	return m
}
