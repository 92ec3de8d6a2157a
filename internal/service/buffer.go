package service

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/model"
	"github.com/zapsub/bot-server-go/internal/util"
)

// FlushFunc receives the coalesced message for a phone once its quiet period
// elapses (or immediately for bypassing input).
type FlushFunc func(phone string, in Inbound)

type bufferEntry struct {
	messages     []Inbound
	timer        *time.Timer
	lastActivity time.Time
	// gen invalidates timers that fired while a newer message was being
	// appended; only the latest scheduled flush may drain the entry.
	gen uint64
}

// Debouncer is the per-sender anti-spam buffer. Free text is held until the
// sender goes quiet for the window; every new message restarts the clock
// (true debounce). Bare numeric menu selections and media bypass the buffer
// so explicit choices are never delayed.
type Debouncer struct {
	mu      sync.Mutex
	entries map[string]*bufferEntry
	window  time.Duration
	flush   FlushFunc
}

func NewDebouncer(window time.Duration, flush FlushFunc) *Debouncer {
	return &Debouncer{
		entries: make(map[string]*bufferEntry),
		window:  window,
		flush:   flush,
	}
}

// Ingest routes one normalized message for phone.
func (d *Debouncer) Ingest(phone string, in Inbound) {
	if in.Kind != model.KindText || util.IsMenuToken(in.Text) {
		d.flush(phone, in)
		return
	}

	d.mu.Lock()
	entry, ok := d.entries[phone]
	if !ok {
		entry = &bufferEntry{}
		d.entries[phone] = entry
	}
	entry.messages = append(entry.messages, in)
	entry.lastActivity = time.Now()
	entry.gen++
	gen := entry.gen

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(d.window, func() {
		d.fire(phone, gen)
	})
	count := len(entry.messages)
	d.mu.Unlock()

	log.Debug().
		Str("phone", util.MaskPhone(phone)).
		Int("buffered", count).
		Msg("buffer: message held for debounce")
}

// fire hands the coalesced batch to the pipeline. Texts are joined with a
// single space in arrival order; the first message's metadata is
// representative for the whole turn. A stale gen means Stop lost the race
// with a timer already past the trigger; the newer timer owns the flush.
func (d *Debouncer) fire(phone string, gen uint64) {
	d.mu.Lock()
	entry, ok := d.entries[phone]
	if !ok || len(entry.messages) == 0 {
		delete(d.entries, phone)
		d.mu.Unlock()
		return
	}
	if entry.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.entries, phone)
	d.mu.Unlock()

	combined := entry.messages[0]
	if len(entry.messages) > 1 {
		texts := make([]string, 0, len(entry.messages))
		for _, m := range entry.messages {
			texts = append(texts, m.Text)
		}
		combined.Text = strings.Join(texts, " ")
	}

	d.flush(phone, combined)
}

// Pending reports how many messages are buffered for phone. Test hook.
func (d *Debouncer) Pending(phone string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.entries[phone]; ok {
		return len(entry.messages)
	}
	return 0
}
