// Package round answers InstructTechnites: it exports every unit's
// instruction in capped chunks and asks the server for the next round.
package round

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/chunk"
	"github.com/MatthiasLenz/TechniteLogic/internal/logic"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/message"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

// Preparer evicts stale units, runs the decider and returns instructions
// in export order.
type Preparer interface {
	PrepareRound(d logic.Decider) ([]technite.Instruction, error)
}

// Record summarises one exported round.
type Record struct {
	Round    uint64
	Units    int
	Chunks   int
	Started  time.Time
	Finished time.Time
}

// Recorder persists round summaries. RecordRound must not block.
type Recorder interface {
	RecordRound(r Record)
}

type Option func(*Controller)

// WithMaxPerChunk lowers the instruction cap. Values outside
// (0, MaxInstructionsPerChunk] are ignored.
func WithMaxPerChunk(n int) Option {
	return func(c *Controller) {
		if n > 0 && n <= message.MaxInstructionsPerChunk {
			c.maxPerChunk = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

type Controller struct {
	preparer    Preparer
	decider     logic.Decider
	sender      channel.Sender
	maxPerChunk int
	recorder    Recorder
	now         func() time.Time
	round       uint64
}

func New(p Preparer, d logic.Decider, s channel.Sender, opts ...Option) *Controller {
	if d == nil {
		d = logic.Idle{}
	}
	c := &Controller{
		preparer:    p,
		decider:     d,
		sender:      s,
		maxPerChunk: message.MaxInstructionsPerChunk,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind registers the InstructTechnites signal handler.
func (c *Controller) Bind(r *channel.Registry) error {
	return channel.RegisterSignal(r, channel.InstructTechnites, c.HandleInstruct)
}

// HandleInstruct runs one round exchange.
func (c *Controller) HandleInstruct() error {
	started := c.now()
	instructions, err := c.preparer.PrepareRound(c.decider)
	if err != nil {
		return err
	}

	chunks := 0
	for env, err := range chunk.PaginateSlice(instructions, c.maxPerChunk) {
		if err != nil {
			return fmt.Errorf("round: paginate: %w", err)
		}
		payload := message.EncodeInstructionChunk(message.InstructionChunk{
			Offset:       env.Offset,
			Instructions: env.Items,
		})
		if err := c.sender.Send(channel.TechniteInstructionChunk, payload); err != nil {
			return fmt.Errorf("round: send instruction chunk at offset %d: %w", env.Offset, err)
		}
		chunks++
	}
	if err := c.sender.Send(channel.RequestNextRound, nil); err != nil {
		return fmt.Errorf("round: request next round: %w", err)
	}

	c.round++
	rec := Record{
		Round:    c.round,
		Units:    len(instructions),
		Chunks:   chunks,
		Started:  started,
		Finished: c.now(),
	}
	log.Info().
		Uint64("round", rec.Round).
		Int("units", rec.Units).
		Int("chunks", rec.Chunks).
		Dur("elapsed", rec.Finished.Sub(rec.Started)).
		Msg("round.Controller instructions sent")
	if c.recorder != nil {
		c.recorder.RecordRound(rec)
	}
	return nil
}

// Rounds is the number of completed exchanges.
func (c *Controller) Rounds() uint64 {
	return c.round
}
