package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recapbot/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// channelFanout bounds concurrent per-channel collection in multi-channel
// runs.
const channelFanout = 4

// Service is the single summarization entry point. It wires the quota gate,
// collector, bot-channel detector, budget fitter, retry engine and cache
// into one run per request.
type Service struct {
	quota        QuotaGate
	collector    *Collector
	integrations []Integration
	fitter       *Fitter
	engine       *Engine
	cache        SummaryCache
	namer        ChannelNamer

	budgetChars int
	maxRoots    int

	now func() time.Time
}

func NewService(quota QuotaGate, collector *Collector, integrations []Integration, fitter *Fitter, engine *Engine, cache SummaryCache, namer ChannelNamer, budgetChars, maxRoots int) *Service {
	return &Service{
		quota:        quota,
		collector:    collector,
		integrations: integrations,
		fitter:       fitter,
		engine:       engine,
		cache:        cache,
		namer:        namer,
		budgetChars:  budgetChars,
		maxRoots:     maxRoots,
		now:          time.Now,
	}
}

// Summarize runs the full pipeline for one request. Failures carry an error
// kind (see errors.go); quota consumed by refundable failures is returned
// through the gate's AllowMore.
func (s *Service) Summarize(ctx context.Context, req Request) (*Summarization, error) {
	feature := FeatureSummarizeChannel
	if req.Context == ContextThread {
		feature = FeatureSummarizeThread
	}

	allowed, err := s.quota.Acquire(ctx, req.TeamID, req.UserID, feature)
	if err != nil {
		return nil, NewError(KindUpstreamUnavailable, fmt.Errorf("quota check failed: %w", err))
	}
	if !allowed {
		return nil, NewError(KindRateLimited, nil)
	}

	start := time.Now()
	result, err := s.run(ctx, req)
	metrics.SummarizationDuration.WithLabelValues(string(req.Context)).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := KindOf(err)
		metrics.SummarizationsTotal.WithLabelValues(string(req.Context), kind.String()).Inc()

		if kind.Refundable() {
			if refundErr := s.quota.AllowMore(ctx, req.TeamID, req.UserID, feature, 1); refundErr != nil {
				slog.Error("Failed to refund quota",
					"error", refundErr,
					"team_id", req.TeamID,
					"user_id", req.UserID,
					"feature", feature)
			}
		}
		return nil, err
	}

	metrics.SummarizationsTotal.WithLabelValues(string(req.Context), "success").Inc()
	return result, nil
}

func (s *Service) run(ctx context.Context, req Request) (*Summarization, error) {
	if len(req.ChannelIDs) == 0 {
		return nil, NewError(KindNoMessages, fmt.Errorf("no channel specified"))
	}

	startDate := windowStart(s.now(), req.DaysBack, req.Timezone)

	switch req.Context {
	case ContextThread:
		return s.runThread(ctx, req, startDate)
	case ContextMultiChannel:
		return s.runMultiChannel(ctx, req, startDate)
	default:
		return s.runChannel(ctx, req, startDate)
	}
}

func (s *Service) runThread(ctx context.Context, req Request, startDate time.Time) (*Summarization, error) {
	channelID := req.ChannelIDs[0]

	thread, err := s.collector.FetchThread(ctx, channelID, req.ThreadTs)
	if err != nil {
		return nil, classify(err)
	}

	records, err := s.fitter.Fit(ctx, []EnrichedThread{thread}, channelID, s.budgetChars, ContextThread)
	if err != nil {
		return nil, classify(err)
	}

	result, err := s.engine.Summarize(ctx, req, records, "")
	if err != nil {
		return nil, err
	}

	result.StartDate = startDate
	s.cacheResult(ctx, req, result, channelID)
	return result, nil
}

func (s *Service) runChannel(ctx context.Context, req Request, startDate time.Time) (*Summarization, error) {
	channelID := req.ChannelIDs[0]

	roots, err := s.collector.FetchRootMessages(ctx, channelID, s.maxRoots, req.DaysBack, req.Timezone)
	if err != nil {
		return nil, classify(err)
	}
	if len(roots) == 0 {
		// Valid terminal state: the channel is too quiet to summarize.
		return nil, NewError(KindNoMessages, nil)
	}

	threads, err := s.collector.EnrichWithReplies(ctx, channelID, roots)
	if err != nil {
		return nil, classify(err)
	}

	// A channel dominated by one bot integration is summarized by the
	// integration itself; the backend is never invoked. The share is taken
	// over the enriched set: human replies under bot-posted roots count
	// against bot dominance.
	if single := SingleBot(Detect(flatten(threads), s.integrations)); single != nil {
		metrics.SingleBotChannelsDetected.WithLabelValues(single.Integration).Inc()
		result := s.singleBotResult(single, startDate)
		s.cacheResult(ctx, req, result, channelID)
		return result, nil
	}

	records, err := s.fitter.Fit(ctx, threads, channelID, s.budgetChars, ContextChannel)
	if err != nil {
		return nil, classify(err)
	}

	channelName := s.channelName(ctx, channelID)

	result, err := s.engine.Summarize(ctx, req, records, channelName)
	if err != nil {
		return nil, err
	}

	result.StartDate = startDate
	s.engine.EnrichWithPermalink(ctx, req, result, records[0].Ts)
	s.cacheResult(ctx, req, result, channelID)
	return result, nil
}

func (s *Service) runMultiChannel(ctx context.Context, req Request, startDate time.Time) (*Summarization, error) {
	type channelData struct {
		name    string
		threads []EnrichedThread
	}

	collected := make([]channelData, len(req.ChannelIDs))

	// Per-channel collection and info lookups fan out concurrently; results
	// land at their channel's index, so completion order does not matter.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(channelFanout)

	for i, channelID := range req.ChannelIDs {
		i, channelID := i, channelID
		g.Go(func() error {
			roots, err := s.collector.FetchRootMessages(gctx, channelID, s.maxRoots, req.DaysBack, req.Timezone)
			if err != nil {
				return err
			}
			threads, err := s.collector.EnrichWithReplies(gctx, channelID, roots)
			if err != nil {
				return err
			}
			collected[i] = channelData{
				name:    s.channelName(gctx, channelID),
				threads: threads,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, classify(err)
	}

	var allThreads []EnrichedThread
	var names []string
	for _, data := range collected {
		allThreads = append(allThreads, data.threads...)
		if data.name != "" {
			names = append(names, data.name)
		}
	}

	if len(allThreads) == 0 {
		return nil, NewError(KindNoMessages, nil)
	}

	records, err := s.fitter.Fit(ctx, allThreads, req.ChannelIDs[0], s.budgetChars, ContextMultiChannel)
	if err != nil {
		return nil, classify(err)
	}

	result, err := s.engine.Summarize(ctx, req, records, strings.Join(names, ", "))
	if err != nil {
		return nil, err
	}

	result.StartDate = startDate
	s.engine.EnrichWithPermalink(ctx, req, result, records[0].Ts)
	s.cacheResult(ctx, req, result, req.ChannelIDs[0])
	return result, nil
}

// singleBotResult builds the terminal result for a bot-dominated channel.
// User and reaction counts are reported as 1/1: the system does not attempt
// per-user attribution inside bot-generated content.
func (s *Service) singleBotResult(single *IntegrationSummary, startDate time.Time) *Summarization {
	return &Summarization{
		SessionID:        uuid.New().String(),
		Text:             single.Summary,
		StartDate:        startDate,
		NumberOfMessages: single.MessageCount,
		NumberOfUsers:    1,
		UniqueUsers:      1,
		Reactions:        1,
		SingleBot:        single,
	}
}

// cacheResult stores the accepted summary for the post-to-channel and
// feedback flows. The result is already committed to the caller, so cache
// failures are logged and swallowed.
func (s *Service) cacheResult(ctx context.Context, req Request, result *Summarization, channelID string) {
	if s.cache == nil {
		return
	}

	entry := CachedSummary{
		Text:      result.Text,
		StartDate: result.StartDate,
		ChannelID: channelID,
		ThreadTs:  req.ThreadTs,
	}

	if _, err := s.cache.Set(ctx, entry, result.SessionID); err != nil {
		metrics.SummaryCacheOps.WithLabelValues("set", "error").Inc()
		slog.Error("Failed to cache summary",
			"error", err,
			"session_id", result.SessionID)
		return
	}
	metrics.SummaryCacheOps.WithLabelValues("set", "success").Inc()
}

func (s *Service) channelName(ctx context.Context, channelID string) string {
	if s.namer == nil {
		return ""
	}
	name, err := s.namer.ChannelName(ctx, channelID)
	if err != nil {
		slog.Debug("Channel name lookup failed", "error", err, "channel_id", channelID)
		return ""
	}
	return name
}

// classify wraps unclassified errors as upstream unavailability while
// passing already-classified pipeline errors through unchanged.
func classify(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(KindUpstreamUnavailable, err)
}
