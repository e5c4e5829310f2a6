// Package orchestrator drives a session through its turns: it asks the
// generation service for scenes, validates them, applies the player's
// choices and makes sure every finished case gets an ending.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tatianab/casefile/internal/engine"
	"github.com/tatianab/casefile/internal/game"
	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/response"
	"github.com/tatianab/casefile/internal/retry"
	"github.com/tatianab/casefile/internal/speech"
	"github.com/tatianab/casefile/internal/story"
)

// DefaultNarrationWait bounds how long a choice waits for its narration.
const DefaultNarrationWait = 15 * time.Second

// Settings is the part of the settings collaborator the orchestrator reads.
type Settings interface {
	NarrationEnabled() bool
	NarrationVoice() string
}

// Journal records finished turns and cases. storage.Store implements it.
type Journal interface {
	OpenCase(ctx context.Context, id string, c models.CaseFile, maxScore int, at time.Time) error
	AppendTurn(ctx context.Context, id string, rec models.TurnRecord) error
	CloseCase(ctx context.Context, id string, status models.Status, score int, e models.Ending, at time.Time) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithSpeech(s speech.Synthesizer) Option {
	return func(o *Orchestrator) { o.speech = s }
}

func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNarrationWait bounds each narration. Zero disables the bound.
func WithNarrationWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.narrationWait = d }
}

// WithIllustrations turns scene illustrations on or off.
func WithIllustrations(on bool) Option {
	return func(o *Orchestrator) { o.illustrations = on }
}

// WithClock overrides the clock used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one session. At most one operation is in flight at a
// time; a second one fails with models.ErrBusy.
type Orchestrator struct {
	session  *game.Session
	gen      engine.Generator
	settings Settings

	speech        speech.Synthesizer
	journal       Journal
	policy        retry.Policy
	logger        *zap.Logger
	narrationWait time.Duration
	illustrations bool
	now           func() time.Time

	endings singleflight.Group

	mu        sync.Mutex
	busy      bool
	token     uint64
	cancel    context.CancelFunc
	narration *speech.Audio
}

// New returns an orchestrator for session. settings may be nil, which
// disables narration.
func New(session *game.Session, gen engine.Generator, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:       session,
		gen:           gen,
		settings:      settings,
		policy:        retry.Default(),
		logger:        zap.NewNop(),
		narrationWait: DefaultNarrationWait,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// flight is one in-flight operation.
type flight struct {
	ctx   context.Context
	token uint64
	done  func()
}

func (o *Orchestrator) begin(ctx context.Context) (*flight, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return nil, models.ErrBusy
	}
	o.busy = true
	o.token++
	token := o.token
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	return &flight{
		ctx:   ctx,
		token: token,
		done: func() {
			cancel()
			o.mu.Lock()
			defer o.mu.Unlock()
			if o.token == token {
				o.busy = false
				o.cancel = nil
			}
		},
	}, nil
}

// live reports whether f has not been cancelled or superseded.
func (o *Orchestrator) live(f *flight) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token == f.token && f.ctx.Err() == nil
}

// IsBusy reports whether an operation is in flight.
func (o *Orchestrator) IsBusy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Cancel abandons the operation in flight, if any. Its result is discarded
// when it arrives. Narration in progress is stopped.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.token++
	o.busy = false
	o.mu.Unlock()

	if o.speech != nil {
		o.speech.Stop()
	}
}

// Reset cancels any work and returns the session to setup.
func (o *Orchestrator) Reset() {
	o.Cancel()
	o.session.Reset()

	o.mu.Lock()
	o.narration = nil
	o.mu.Unlock()
	o.logger.Info("Session reset")
}

// Snapshot returns a copy of the session state.
func (o *Orchestrator) Snapshot() game.Snapshot {
	return o.session.Snapshot()
}

// Narration returns the most recent narration clip.
func (o *Orchestrator) Narration() (speech.Audio, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.narration == nil {
		return speech.Audio{}, false
	}
	return *o.narration, true
}

// Configure sets the case while the session is in setup.
func (o *Orchestrator) Configure(c models.CaseFile) error {
	if o.IsBusy() {
		return models.ErrBusy
	}
	return o.session.Configure(c)
}

// Start begins the configured case and fetches the opening scene. Starting
// a case that is already playing only fetches a missing scene.
func (o *Orchestrator) Start(ctx context.Context) error {
	f, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer f.done()

	wasPlaying := o.session.Status() == models.StatusPlaying
	if err := o.session.Start(); err != nil {
		return err
	}
	snap := o.session.Snapshot()
	if !wasPlaying {
		o.logger.Info("Case started",
			zap.String("case_id", snap.ID),
			zap.String("detective", snap.Case.Detective),
			zap.Int("max_score", snap.MaxScore),
		)
		o.record(f.ctx, "open case", func(ctx context.Context) error {
			return o.journal.OpenCase(ctx, snap.ID, snap.Case, snap.MaxScore, o.now())
		})
	}
	if snap.Current != nil {
		return nil
	}
	return o.nextTurn(f, snap)
}

// Restore resumes a saved case. The journal gets a new entry for it under
// the restored session's ID with the saved turns replayed.
func (o *Orchestrator) Restore(ctx context.Context, snap game.Snapshot) error {
	f, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer f.done()

	if err := o.session.Restore(snap); err != nil {
		return err
	}
	restored := o.session.Snapshot()
	o.logger.Info("Case restored",
		zap.String("case_id", restored.ID),
		zap.Int("turn", restored.Turn),
		zap.String("status", string(restored.Status)),
	)
	o.record(f.ctx, "open case", func(ctx context.Context) error {
		if err := o.journal.OpenCase(ctx, restored.ID, restored.Case, restored.MaxScore, o.now()); err != nil {
			return err
		}
		for _, rec := range restored.Log {
			if err := o.journal.AppendTurn(ctx, restored.ID, rec); err != nil {
				return err
			}
		}
		if restored.Ending != nil {
			return o.journal.CloseCase(ctx, restored.ID, restored.Status, restored.Score, *restored.Ending, o.now())
		}
		return nil
	})
	return nil
}

// RequestTurn fetches whatever the session is missing: the pending scene
// while playing, or the ending of a finished case. It is the retry
// affordance after a surfaced failure.
func (o *Orchestrator) RequestTurn(ctx context.Context) error {
	f, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer f.done()

	snap := o.session.Snapshot()
	switch {
	case snap.Status == models.StatusPlaying && snap.Current == nil:
		return o.nextTurn(f, snap)
	case snap.Status == models.StatusPlaying:
		return nil
	case snap.Status.Terminal():
		return o.finish(f)
	}
	return fmt.Errorf("%w: request turn while %s", models.ErrIllegalStateTransition, snap.Status)
}

// SelectChoice applies the choice labelled label, narrates its outcome and
// then fetches the next scene or the ending.
func (o *Orchestrator) SelectChoice(ctx context.Context, label string) error {
	f, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer f.done()

	rec, err := o.session.ApplyChoice(label)
	if err != nil {
		return err
	}
	snap := o.session.Snapshot()
	o.logger.Info("Choice applied",
		zap.String("case_id", snap.ID),
		zap.Int("turn", rec.Index),
		zap.String("choice", rec.Choice.Label),
		zap.Int("points", rec.Choice.Points),
		zap.Int("score", rec.ScoreAfter),
		zap.String("status", string(snap.Status)),
	)
	o.record(f.ctx, "append turn", func(ctx context.Context) error {
		return o.journal.AppendTurn(ctx, snap.ID, rec)
	})

	o.narrate(f.ctx, rec.Choice.Outcome)

	if snap.Status.Terminal() {
		return o.finish(f)
	}
	if !o.live(f) {
		return context.Canceled
	}
	return o.nextTurn(f, snap)
}

// nextTurn generates, validates and commits the scene for snap's turn.
func (o *Orchestrator) nextTurn(f *flight, snap game.Snapshot) error {
	stamp := game.Stamp{Epoch: snap.ID, Turn: snap.Turn}
	cc := snap.Context()
	req := engine.TurnRequest{
		Case:     snap.Case,
		Turn:     snap.Turn,
		Score:    snap.Score,
		MaxScore: snap.MaxScore,
		Context:  cc,
		Opening:  len(snap.Log) == 0,
	}
	if last, ok := snap.Log.Last(); ok {
		req.LastOutcome = last.Choice.Outcome
	}

	logger := o.logger.With(zap.String("case_id", snap.ID), zap.Int("turn", snap.Turn))
	turn, err := retry.Do(f.ctx, o.policy, logger, func(ctx context.Context, attempt int) (models.Turn, error) {
		raw, err := o.gen.RequestTurn(ctx, req)
		if err != nil {
			return models.Turn{}, err
		}
		return response.ParseTurn(raw)
	})
	if err != nil {
		return err
	}
	if !o.live(f) {
		logger.Info("Discarding turn for a cancelled request")
		return context.Canceled
	}

	turn.Illustration = o.illustrate(f.ctx, logger, engine.IllustrationRequest{
		Case:  snap.Case,
		Scene: turn.Narrative,
		Mood:  cc.State,
		Style: cc.Momentum.Describe(),
	})

	if err := o.session.CommitTurn(stamp, turn); err != nil {
		if errors.Is(err, models.ErrStaleResponse) {
			logger.Info("Discarding stale turn", zap.Error(err))
		}
		return err
	}
	logger.Debug("Turn committed")
	return nil
}

// finish makes sure the finished case has an ending. Endings are generated
// once per session epoch; a generation failure falls back to the templated
// ending. A cancelled flight commits nothing, so the ending can be requested
// again.
func (o *Orchestrator) finish(f *flight) error {
	snap := o.session.Snapshot()
	if snap.Ending != nil {
		return nil
	}
	stamp := game.Stamp{Epoch: snap.ID, Turn: snap.Turn}

	_, err, _ := o.endings.Do(snap.ID, func() (any, error) {
		ending, err := o.compose(f, snap)
		if err != nil {
			return nil, err
		}
		wrote, err := o.session.CommitEnding(stamp, ending)
		if err != nil {
			return nil, err
		}
		if !wrote {
			return nil, nil
		}
		o.logger.Info("Case closed",
			zap.String("case_id", snap.ID),
			zap.String("status", string(snap.Status)),
			zap.Int("score", snap.Score),
			zap.Bool("fallback", ending.Fallback),
		)
		o.record(f.ctx, "close case", func(ctx context.Context) error {
			return o.journal.CloseCase(ctx, snap.ID, snap.Status, snap.Score, ending, o.now())
		})
		return nil, nil
	})
	return err
}

func (o *Orchestrator) compose(f *flight, snap game.Snapshot) (models.Ending, error) {
	ctx := f.ctx
	victory := snap.Status == models.StatusWon
	logger := o.logger.With(zap.String("case_id", snap.ID))
	req := engine.EndingRequest{
		Case:     snap.Case,
		Log:      snap.Log,
		Score:    snap.Score,
		MaxScore: snap.MaxScore,
		Victory:  victory,
	}

	text, err := retry.Do(ctx, o.policy, logger, func(ctx context.Context, attempt int) (string, error) {
		raw, err := o.gen.RequestEnding(ctx, req)
		if err != nil {
			return "", err
		}
		return response.ParseEnding(raw)
	})

	if !o.live(f) || errors.Is(err, context.Canceled) {
		logger.Info("Discarding ending for a cancelled request")
		return models.Ending{}, context.Canceled
	}

	var ending models.Ending
	if err != nil {
		logger.Warn("Using templated ending", zap.Error(err))
		ending = story.FallbackEnding(snap.Case, len(snap.Log), victory)
	} else {
		ending = models.Ending{Text: text, Victory: victory}
	}

	cc := snap.Context()
	ending.Illustration = o.illustrate(ctx, logger, engine.IllustrationRequest{
		Case:   snap.Case,
		Scene:  ending.Text,
		Mood:   cc.State,
		Style:  cc.Momentum.Describe(),
		Ending: true,
	})
	if !o.live(f) {
		return models.Ending{}, context.Canceled
	}
	return ending, nil
}

// illustrate returns an image URL, or "" when illustrations are off or fail.
func (o *Orchestrator) illustrate(ctx context.Context, logger *zap.Logger, req engine.IllustrationRequest) string {
	if !o.illustrations || ctx.Err() != nil {
		return ""
	}
	url, err := o.gen.RequestIllustration(ctx, req)
	switch {
	case errors.Is(err, engine.ErrIllustrationUnsupported):
		logger.Debug("Illustrations unsupported by backend")
	case err != nil:
		logger.Warn("Illustration failed", zap.Error(err))
	}
	return url
}

// narrate reads text aloud when narration is on. Failures are logged only.
func (o *Orchestrator) narrate(ctx context.Context, text string) {
	if o.speech == nil || o.settings == nil || !o.settings.NarrationEnabled() {
		return
	}
	if o.narrationWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.narrationWait)
		defer cancel()
	}

	audio, err := o.speech.Synthesize(ctx, text, o.settings.NarrationVoice())
	if err != nil {
		o.logger.Warn("Narration failed", zap.Error(err))
		return
	}
	o.mu.Lock()
	o.narration = &audio
	o.mu.Unlock()
}

// record writes to the journal, if any. Journal failures never fail the game.
func (o *Orchestrator) record(ctx context.Context, what string, write func(context.Context) error) {
	if o.journal == nil {
		return
	}
	if err := write(context.WithoutCancel(ctx)); err != nil {
		o.logger.Warn("Journal write failed", zap.String("op", what), zap.Error(err))
	}
}
