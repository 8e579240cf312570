package converter

import "sync"

// Tracker объединяет обновления прогресса по правилу "принимается только большее значение".
// Запоздавшие и меньшие обновления отбрасываются.
type Tracker struct {
	mu      sync.Mutex
	current int
	sink    ProgressFunc
}

// NewTracker создаёт Tracker. sink может быть nil.
func NewTracker(sink ProgressFunc) *Tracker {
	return &Tracker{current: -1, sink: sink}
}

// Report передаёт обновление дальше, если процент больше текущего.
// Возвращает true, если обновление принято.
func (t *Tracker) Report(stage Stage, percent int) bool {
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	if percent <= t.current {
		t.mu.Unlock()
		return false
	}
	t.current = percent
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink(ProgressUpdate{Stage: stage, Percent: percent})
	}
	return true
}

// Current возвращает последнее принятое значение (0, если обновлений не было).
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current < 0 {
		return 0
	}
	return t.current
}
