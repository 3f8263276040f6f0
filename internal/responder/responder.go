package responder

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/valyala/fasttemplate"
)

const (
	shortTimeLayout = "03:04 PM"
	longTimeLayout  = "3:04:05 PM"
)

// Reply is the chosen answer for a transcript
type Reply struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Option configures a Responder
type Option func(*Responder)

// WithIntN replaces the random index source, mostly for tests
func WithIntN(intN func(n int) int) Option {
	return func(r *Responder) {
		r.intN = intN
	}
}

// WithClock sets the clock used for time placeholders
func WithClock(c clock.Clock) Option {
	return func(r *Responder) {
		r.clock = c
	}
}

// WithLocation sets the time zone used for time placeholders
func WithLocation(loc *time.Location) Option {
	return func(r *Responder) {
		if loc != nil {
			r.location = loc
		}
	}
}

// Responder classifies text and picks one template at random
type Responder struct {
	catalog  *Catalog
	intN     func(n int) int
	clock    clock.Clock
	location *time.Location
}

// New creates a responder over catalog
func New(catalog *Catalog, opts ...Option) *Responder {
	r := &Responder{
		catalog:  catalog,
		intN:     rand.IntN,
		clock:    clock.New(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond classifies text and renders one template of the category
func (r *Responder) Respond(text string) Reply {
	category := r.catalog.Classify(text)
	templates := r.catalog.Templates(category)

	chosen := templates[r.intN(len(templates))]
	return Reply{
		Category: category,
		Text:     r.render(chosen),
	}
}

func (r *Responder) render(template string) string {
	now := r.clock.Now().In(r.location)
	return fasttemplate.ExecuteFuncString(template, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		switch tag {
		case "time_short":
			return w.Write([]byte(now.Format(shortTimeLayout)))
		case "time_long":
			return w.Write([]byte(now.Format(longTimeLayout)))
		default:
			return w.Write([]byte("{{" + tag + "}}"))
		}
	})
}
