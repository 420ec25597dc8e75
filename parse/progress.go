package parse

import (
	"time"

	"github.com/rs/zerolog"

	"tidbyt.dev/transit/model"
)

// Observes compilation of a table. Calls are purely informational
// and the compiler behaves the same regardless of implementation.
type Progress interface {
	// Called before the first row, with the number of lines in
	// the table (header included).
	Begin(kind model.EntityKind, total int)

	// Called after each line, header included.
	Step(line int)

	// Called once the table has been committed.
	Finish()
}

type noProgress struct{}

func (noProgress) Begin(model.EntityKind, int) {}
func (noProgress) Step(int)                    {}
func (noProgress) Finish()                     {}

// Progress that does nothing.
var NoProgress Progress = noProgress{}

// Logs table progress. A line is logged every Every lines, if
// positive.
type LogProgress struct {
	Logger zerolog.Logger
	Every  int

	kind    model.EntityKind
	total   int
	line    int
	started time.Time
}

func NewLogProgress(logger zerolog.Logger, every int) *LogProgress {
	return &LogProgress{Logger: logger, Every: every}
}

func (p *LogProgress) Begin(kind model.EntityKind, total int) {
	p.kind = kind
	p.total = total
	p.line = 0
	p.started = time.Now()
	p.Logger.Info().
		Str("kind", kind.String()).
		Int("total", total).
		Msg("compiling table")
}

func (p *LogProgress) Step(line int) {
	p.line = line
	if p.Every > 0 && line%p.Every == 0 {
		p.Logger.Debug().
			Str("kind", p.kind.String()).
			Int("line", line).
			Int("total", p.total).
			Msg("compiling")
	}
}

func (p *LogProgress) Finish() {
	p.Logger.Info().
		Str("kind", p.kind.String()).
		Int("lines", p.line).
		Dur("elapsed", time.Since(p.started)).
		Msg("compiled table")
}

// Fans out to several observers.
type MultiProgress []Progress

func (m MultiProgress) Begin(kind model.EntityKind, total int) {
	for _, p := range m {
		p.Begin(kind, total)
	}
}

func (m MultiProgress) Step(line int) {
	for _, p := range m {
		p.Step(line)
	}
}

func (m MultiProgress) Finish() {
	for _, p := range m {
		p.Finish()
	}
}
