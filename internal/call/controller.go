package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxdial/voxdial-core/internal/bus"
	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/dialogue"
	"github.com/voxdial/voxdial-core/internal/eventstore"
	"github.com/voxdial/voxdial-core/internal/protocol"
	"github.com/voxdial/voxdial-core/internal/synth"
	"github.com/voxdial/voxdial-core/internal/telephony"
	"github.com/voxdial/voxdial-core/internal/twiml"
)

// ErrUnknownSession is returned when a webhook references a call the
// registry does not know.
var ErrUnknownSession = errors.New("unknown call session")

// Controller drives the turn-taking loop for live calls: greeting, per-turn
// transcript handling, and termination.
type Controller struct {
	cfg         config.SessionConfig
	gateway     telephony.Gateway
	synth       synth.Synthesizer
	completer   dialogue.Completer
	system      string
	registry    *Registry
	events      *bus.Client
	store       *eventstore.Store
	from        string
	ringTimeout int
	speechURL   string
	statusURL   string
	log         *slog.Logger

	turnCounter metric.Int64Counter
	endCounter  metric.Int64Counter
}

// ControllerParams wires the controller's collaborators.
type ControllerParams struct {
	Session     config.SessionConfig
	Dialogue    config.DialogueConfig
	Gateway     telephony.Gateway
	Synth       synth.Synthesizer
	Completer   dialogue.Completer
	Registry    *Registry
	Bus         *bus.Client
	Store       *eventstore.Store
	From        string
	RingTimeout int
	PublicURL   string
	Logger      *slog.Logger
}

func NewController(p ControllerParams) *Controller {
	base := strings.TrimSuffix(p.PublicURL, "/")
	c := &Controller{
		cfg:         p.Session,
		gateway:     p.Gateway,
		synth:       p.Synth,
		completer:   p.Completer,
		system:      p.Dialogue.SystemPrompt,
		registry:    p.Registry,
		events:      p.Bus,
		store:       p.Store,
		from:        p.From,
		ringTimeout: p.RingTimeout,
		speechURL:   base + "/webhooks/speech",
		statusURL:   base + "/webhooks/status",
		log:         p.Logger.With(slog.String("component", "call-controller")),
	}
	c.initMetrics()
	return c
}

func (c *Controller) initMetrics() {
	meter := otel.Meter("github.com/voxdial/voxdial-core/runtime")
	var err error
	c.turnCounter, err = meter.Int64Counter("voxdial.turns",
		metric.WithDescription("Completed conversational turns"))
	if err != nil {
		c.log.Warn("failed to register turn counter", slog.String("error", err.Error()))
	}
	c.endCounter, err = meter.Int64Counter("voxdial.sessions.ended",
		metric.WithDescription("Terminated call sessions by reason"))
	if err != nil {
		c.log.Warn("failed to register termination counter", slog.String("error", err.Error()))
	}
}

// StartResult reports a successfully placed call.
type StartResult struct {
	Session  *Session
	Status   string
	AudioURL string
}

// StartSession synthesizes the greeting, places the outbound call, and
// registers the session. Call placement is never retried here: a duplicate
// outbound call is worse than a failed one.
func (c *Controller) StartSession(ctx context.Context, to, greeting string) (StartResult, error) {
	if greeting == "" {
		greeting = c.cfg.Greeting
	}

	artifact, err := c.synth.Synthesize(ctx, greeting)
	if err != nil {
		return StartResult{}, fmt.Errorf("synthesize greeting: %w", err)
	}

	doc, err := twiml.New().
		Pause(1).
		Play(artifact.URL).
		GatherSpeech(twiml.Gather{Action: c.speechURL}).
		Render()
	if err != nil {
		return StartResult{}, fmt.Errorf("render initial instruction document: %w", err)
	}

	created, err := c.gateway.CreateCall(ctx, telephony.CreateParams{
		To:             to,
		From:           c.from,
		InstructionDoc: doc,
		StatusCallback: c.statusURL,
		Timeout:        c.ringTimeout,
	})
	if err != nil {
		return StartResult{}, err
	}

	session := newSession(created.SID, to, dialogue.NewEngine(c.completer, c.system))
	session.state = StateAwaitingSpeech
	c.registry.Insert(session)

	if c.store != nil {
		if err := c.store.AppendCall(ctx, created.SID, to, c.from); err != nil {
			c.log.Warn("failed to record call", slog.String("error", err.Error()))
		}
	}
	c.publish(protocol.SubjectCallStarted, protocol.CallEvent{
		CallSID:   created.SID,
		To:        to,
		Status:    created.Status,
		Timestamp: time.Now().UTC(),
	})

	c.log.Info("session started",
		slog.String("call_sid", created.SID),
		slog.String("to", to),
		slog.String("audio_url", artifact.URL))

	return StartResult{Session: session, Status: created.Status, AudioURL: artifact.URL}, nil
}

// Synthesizer exposes the configured synthesizer for callers that need a
// standalone artifact outside the turn loop.
func (c *Controller) Synthesizer() synth.Synthesizer { return c.synth }

// Session looks up a live session by call SID.
func (c *Controller) Session(callSID string) (*Session, bool) {
	return c.registry.Lookup(callSID)
}

// ActiveSessions returns the number of live sessions.
func (c *Controller) ActiveSessions() int { return c.registry.Len() }

// HandleUtterance is the single per-turn entry point, invoked once per
// provider speech webhook. It returns the instruction document that tells
// the provider what to do next on the call.
func (c *Controller) HandleUtterance(ctx context.Context, callSID, transcript string) (string, error) {
	session, ok := c.registry.Lookup(callSID)
	if !ok {
		return "", ErrUnknownSession
	}

	// One webhook at a time per call. The provider already serializes
	// deliveries; the lock makes that assumption explicit.
	session.mu.Lock()
	defer session.mu.Unlock()

	if !session.active {
		return c.renderHangup(c.cfg.GoodbyeText)
	}
	session.state = StateProcessing

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return c.handleSilence(ctx, session)
	}

	session.silence = 0

	// The exit-phrase check precedes dialogue dispatch so the agent can
	// never talk the caller out of hanging up.
	if c.containsTerminationPhrase(transcript) {
		return c.endSession(ctx, session, ReasonUserRequested, transcript)
	}

	reply, err := session.engine.Respond(ctx, transcript)
	if err != nil {
		c.log.Warn("dialogue failed, re-prompting",
			slog.String("call_sid", session.CallSID),
			slog.String("error", err.Error()))
		return c.reprompt(session, c.cfg.ApologyText)
	}

	artifact, err := c.synth.Synthesize(ctx, reply)
	if err != nil {
		c.log.Warn("synthesis failed, re-prompting",
			slog.String("call_sid", session.CallSID),
			slog.String("error", err.Error()))
		return c.reprompt(session, c.cfg.ApologyText)
	}

	c.recordTurn(ctx, session, transcript, reply, artifact.URL)
	session.state = StateAwaitingSpeech
	c.addTurnMetric(ctx, "reply")

	return twiml.New().
		Play(artifact.URL).
		GatherSpeech(twiml.Gather{Action: c.speechURL}).
		Render()
}

func (c *Controller) handleSilence(ctx context.Context, session *Session) (string, error) {
	session.silence++
	c.addTurnMetric(ctx, "silence")

	if session.silence >= c.cfg.SilenceThreshold {
		return c.endSession(ctx, session, ReasonSilenceTimeout, "")
	}

	c.publish(protocol.SubjectTurnCompleted, protocol.TurnEvent{
		CallSID:   session.CallSID,
		Silence:   session.silence,
		Timestamp: time.Now().UTC(),
	})
	return c.reprompt(session, c.cfg.RepromptText)
}

func (c *Controller) reprompt(session *Session, text string) (string, error) {
	session.state = StateAwaitingSpeech
	g := twiml.Gather{Action: c.speechURL}
	if c.cfg.Voice != "" {
		g.SayVoice(c.cfg.Voice, text)
	} else {
		g.Say(text)
	}
	return twiml.New().GatherSpeech(g).Render()
}

// endSession marks the session terminated, tells the provider the call is
// complete, and responds with a hang-up. The status update is best-effort:
// the response document is authoritative for the provider's next action.
// A silence timeout hangs up without a farewell; nobody is listening.
func (c *Controller) endSession(ctx context.Context, session *Session, reason Reason, transcript string) (string, error) {
	session.state = StateTerminating
	session.terminate(reason)
	c.registry.Remove(session.CallSID)

	if err := c.gateway.UpdateCallStatus(ctx, session.CallSID, telephony.StatusCompleted); err != nil {
		c.log.Warn("failed to update call status on termination",
			slog.String("call_sid", session.CallSID),
			slog.String("error", err.Error()))
	}

	if c.store != nil {
		if err := c.store.SetTerminationReason(ctx, session.CallSID, string(reason)); err != nil {
			c.log.Warn("failed to record termination reason", slog.String("error", err.Error()))
		}
	}
	c.publish(protocol.SubjectCallEnded, protocol.CallEvent{
		CallSID:   session.CallSID,
		Reason:    string(reason),
		Timestamp: time.Now().UTC(),
	})
	if c.endCounter != nil {
		c.endCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	}

	c.log.Info("session terminated",
		slog.String("call_sid", session.CallSID),
		slog.String("reason", string(reason)),
		slog.String("last_transcript", transcript))

	if reason == ReasonSilenceTimeout {
		return HangupDocument(), nil
	}
	return c.renderHangup(c.cfg.GoodbyeText)
}

func (c *Controller) containsTerminationPhrase(transcript string) bool {
	lowered := strings.ToLower(transcript)
	for _, phrase := range c.cfg.TerminationPhrases {
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (c *Controller) recordTurn(ctx context.Context, session *Session, transcript, reply, audioURL string) {
	event := protocol.TurnEvent{
		CallSID:    session.CallSID,
		Transcript: transcript,
		Reply:      reply,
		AudioURL:   audioURL,
		Timestamp:  time.Now().UTC(),
	}
	c.publish(protocol.SubjectTurnCompleted, event)
	if c.store != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			err = c.store.AppendEvent(ctx, eventstore.Event{
				CallSID: session.CallSID,
				Type:    "turn",
				Payload: payload,
			})
		}
		if err != nil {
			c.log.Warn("failed to record turn", slog.String("error", err.Error()))
		}
	}
}

// HandleStatus processes a provider status callback. Status changes are
// observability input only; terminal statuses also reap the session so a
// caller hang-up does not leak registry entries.
func (c *Controller) HandleStatus(ctx context.Context, callSID, status string) {
	c.log.Info("call status update", slog.String("call_sid", callSID), slog.String("status", status))

	c.publish(protocol.SubjectCallStatus, protocol.CallEvent{
		CallSID:   callSID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	if c.store != nil {
		if err := c.store.AppendEvent(ctx, eventstore.Event{
			CallSID: callSID,
			Type:    "status:" + status,
		}); err != nil {
			c.log.Warn("failed to record status event", slog.String("error", err.Error()))
		}
	}

	switch status {
	case telephony.StatusCompleted, telephony.StatusFailed, telephony.StatusNoAnswer, telephony.StatusCanceled:
		if session, ok := c.registry.Lookup(callSID); ok {
			session.mu.Lock()
			if session.active {
				session.terminate(ReasonNone)
			}
			session.mu.Unlock()
			c.registry.Remove(callSID)
		}
	}
}

func (c *Controller) addTurnMetric(ctx context.Context, kind string) {
	if c.turnCounter != nil {
		c.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (c *Controller) publish(subject string, payload any) {
	if c.events != nil {
		c.events.Publish(subject, payload)
	}
}

func (c *Controller) renderHangup(goodbye string) (string, error) {
	doc := twiml.New()
	if goodbye != "" {
		if c.cfg.Voice != "" {
			doc.SayVoice(c.cfg.Voice, goodbye)
		} else {
			doc.Say(goodbye)
		}
	}
	return doc.Hangup().Render()
}

// HangupDocument is the bare hang-up response sent for webhooks that
// reference a call this process no longer tracks.
func HangupDocument() string {
	doc, err := twiml.New().Hangup().Render()
	if err != nil {
		// Static document, cannot fail at runtime.
		panic(err)
	}
	return doc
}
