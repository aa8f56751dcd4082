// Package buffer holds the quote text shared by the protocol handlers.
//
// The text and its completion flag are confined to one core; every access
// goes through a [bridge.Sync], so no lock protects the fields themselves.
// A call that loses the busy guard is a no-op: queries report the zero
// value, mutations are dropped.  Every method returns the error and logs
// it at debug level.
package buffer

import (
	"fmt"
	"strings"

	"corebridge/internal/bridge"
	"corebridge/internal/runloop"
	"corebridge/util"
)

type op int

const (
	opSet op = iota
	opAppend
	opGet
	opClear
	opIsEmpty
	opMarkComplete
	opReset
	opIsComplete
	opSnapshot
)

var opNames = [...]string{"Set", "Append", "Get", "Clear", "IsEmpty", "MarkComplete", "Reset", "IsComplete", "Snapshot"}

func (o op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// payload is one request against the buffer.  It lives on the caller's
// stack for the duration of Execute.
type payload struct {
	op   op
	data string
	text *string
	flag *bool
}

// Quote is a core-confined text buffer with a completion flag.
type Quote struct {
	text     strings.Builder
	complete bool

	sync   *bridge.Sync[payload]
	logger *util.Logger
}

// New creates an empty quote buffer owned by core.
func New(core *runloop.Core) *Quote {
	q := &Quote{logger: core.Logger()}
	q.sync = bridge.NewSync(core, q.execute)
	return q
}

// Core returns the owning core.
func (q *Quote) Core() *runloop.Core { return q.sync.Core() }

// execute runs on the owning core.
func (q *Quote) execute(p *payload) error {
	switch p.op {
	case opSet:
		q.text.Reset()
		q.text.WriteString(p.data)
	case opAppend:
		q.text.WriteString(p.data)
	case opGet:
		*p.text = q.text.String()
	case opClear:
		q.text.Reset()
	case opIsEmpty:
		*p.flag = q.text.Len() == 0
	case opMarkComplete:
		q.complete = true
	case opReset:
		q.text.Reset()
		q.complete = false
	case opIsComplete:
		*p.flag = q.complete
	case opSnapshot:
		*p.text = q.text.String()
		*p.flag = q.complete
	default:
		return fmt.Errorf("unknown quote operation %v", p.op)
	}
	return nil
}

func (q *Quote) call(p *payload) error {
	err := q.sync.Execute(p)
	if err != nil {
		q.logger.Debug("Quote.%s failed: %v", p.op, err)
	}
	return err
}

// Set replaces the text with s.
func (q *Quote) Set(s string) error {
	return q.call(&payload{op: opSet, data: s})
}

// Append adds s to the end of the text.
func (q *Quote) Append(s string) error {
	return q.call(&payload{op: opAppend, data: s})
}

// Get returns a copy of the text.
func (q *Quote) Get() (string, error) {
	var text string
	err := q.call(&payload{op: opGet, text: &text})
	return text, err
}

// Clear empties the text and leaves the completion flag alone.
func (q *Quote) Clear() error {
	return q.call(&payload{op: opClear})
}

// IsEmpty reports whether the text is empty.  On error it reports false.
func (q *Quote) IsEmpty() (bool, error) {
	var empty bool
	err := q.call(&payload{op: opIsEmpty, flag: &empty})
	return empty, err
}

// MarkComplete sets the completion flag.
func (q *Quote) MarkComplete() error {
	return q.call(&payload{op: opMarkComplete})
}

// Reset empties the text and clears the completion flag.
func (q *Quote) Reset() error {
	return q.call(&payload{op: opReset})
}

// IsComplete reports the completion flag.
func (q *Quote) IsComplete() (bool, error) {
	var complete bool
	err := q.call(&payload{op: opIsComplete, flag: &complete})
	return complete, err
}

// Snapshot returns the text and the completion flag read together.
func (q *Quote) Snapshot() (string, bool, error) {
	var (
		text     string
		complete bool
	)
	err := q.call(&payload{op: opSnapshot, text: &text, flag: &complete})
	return text, complete, err
}
