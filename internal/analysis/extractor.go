package analysis

import (
	"context"
	"log/slog"
	"time"

	"segue/internal/features"
	"segue/internal/logging"
	"segue/internal/segueerr"
)

// Extractor runs the full feature pipeline: decode, envelope, tempo, key,
// energy, then bar and phrase vectors. Every stage is a pure function of the
// input bytes, so identical uploads always produce identical features.
type Extractor struct {
	decoder Decoder
	timeout time.Duration
	logger  *slog.Logger
}

func NewExtractor(decoder Decoder, timeout time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{decoder: decoder, timeout: timeout, logger: logger}
}

type extractResult struct {
	summary *features.Summary
	set     *features.FeatureSet
	err     error
}

// Extract analyzes raw audio bytes under the configured wall-clock timeout. A
// hung decode or pathological file surfaces as an extraction-timeout error
// instead of stalling the caller.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*features.Summary, *features.FeatureSet, error) {
	const op = "extract features"

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	results := make(chan extractResult, 1)
	go func() {
		summary, set, err := e.run(runCtx, data)
		results <- extractResult{summary: summary, set: set, err: err}
	}()

	select {
	case res := <-results:
		return res.summary, res.set, res.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, nil, segueerr.Wrap(segueerr.KindExtractionTimeout, op, ctx.Err())
		}
		return nil, nil, segueerr.New(segueerr.KindExtractionTimeout, op, "extraction exceeded %s", e.timeout)
	}
}

func (e *Extractor) run(ctx context.Context, data []byte) (*features.Summary, *features.FeatureSet, error) {
	const op = "extract features"
	started := time.Now()

	pcm, err := e.decoder.Decode(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	duration := pcm.DurationSeconds()
	if duration <= 0 {
		return nil, nil, segueerr.New(segueerr.KindExtraction, op, "decoded signal has zero duration")
	}

	envelope, err := Envelope(pcm.Samples)
	if err != nil {
		return nil, nil, err
	}
	bpm, err := EstimateTempo(pcm)
	if err != nil {
		return nil, nil, err
	}
	key, err := EstimateKey(pcm)
	if err != nil {
		return nil, nil, err
	}

	bars := BarCount(duration, bpm)
	phrases := PhraseCount(bars)
	summary := &features.Summary{
		TempoBPM:        bpm,
		Key:             key,
		KeyToken:        key.String(),
		Energy:          EnergyRating(bpm, envelope),
		DurationSeconds: duration,
		Bars:            bars,
		Phrases:         phrases,
	}
	barVectors := BarVectors(envelope, bars)
	set := &features.FeatureSet{
		Waveform:      envelope,
		BarVectors:    barVectors,
		PhraseVectors: PhraseVectors(barVectors, phrases),
	}
	if err := set.Validate(summary); err != nil {
		return nil, nil, segueerr.Wrap(segueerr.KindExtraction, op, err)
	}

	e.logger.Debug("extraction complete",
		logging.Float64("tempo_bpm", bpm),
		logging.String("key", summary.KeyToken),
		logging.Float64("energy", summary.Energy),
		logging.Int("bars", bars),
		logging.Int("phrases", phrases),
		logging.Duration("elapsed", time.Since(started)),
	)
	return summary, set, nil
}
