package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsub/bot-server-go/internal/model"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushed []Inbound
}

func (r *flushRecorder) flush(phone string, in Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed = append(r.flushed, in)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushed)
}

func (r *flushRecorder) first() Inbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushed[0]
}

func TestDebouncerCoalescesInArrivalOrder(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.flush)

	d.Ingest(testPhone, textIn("oi"))
	d.Ingest(testPhone, textIn("quero renovar"))
	d.Ingest(testPhone, textIn("por favor"))

	assert.Equal(t, 3, d.Pending(testPhone))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond,
		"exactly one combined turn")
	assert.Equal(t, "oi quero renovar por favor", rec.first().Text)
	assert.Equal(t, 0, d.Pending(testPhone))
}

func TestDebouncerResetsTimerPerMessage(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(60*time.Millisecond, rec.flush)

	d.Ingest(testPhone, textIn("primeira"))
	time.Sleep(40 * time.Millisecond)
	d.Ingest(testPhone, textIn("segunda"))
	time.Sleep(40 * time.Millisecond)

	// 80ms elapsed but the second message restarted the clock.
	assert.Zero(t, rec.count())

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "primeira segunda", rec.first().Text)
}

func TestDebouncerNumericTokenBypasses(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush)

	d.Ingest(testPhone, textIn("estou com uma dúvida"))
	d.Ingest(testPhone, textIn("2"))

	require.Equal(t, 1, rec.count(), "menu token is processed immediately")
	assert.Equal(t, "2", rec.first().Text)
	assert.Equal(t, 1, d.Pending(testPhone), "buffered free text is untouched")
}

func TestDebouncerMediaBypasses(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush)

	in := Inbound{Class: ClassMessage, Kind: model.KindImage, Text: "(imagem)"}
	d.Ingest(testPhone, in)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, model.KindImage, rec.first().Kind)
}

func TestDebouncerStaleTimerDoesNotFlushEarly(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush)

	d.Ingest(testPhone, textIn("primeira"))
	d.Ingest(testPhone, textIn("segunda"))

	// A timer from before the second message that slipped past Stop must
	// not drain the buffer; only the latest scheduled flush may.
	d.fire(testPhone, 1)
	assert.Zero(t, rec.count())
	assert.Equal(t, 2, d.Pending(testPhone))

	d.fire(testPhone, 2)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "primeira segunda", rec.first().Text)
}

func TestDebouncerKeepsPhonesIndependent(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush)

	d.Ingest("5511999990000", textIn("a"))
	d.Ingest("5511888880000", textIn("b"))

	assert.Equal(t, 1, d.Pending("5511999990000"))
	assert.Equal(t, 1, d.Pending("5511888880000"))
}
