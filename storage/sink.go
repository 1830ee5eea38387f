package storage

import "github.com/defistate/amm-engine-go/protocols/uniswapv2"

// Sink adapts a Storage into the engine's event sink. Emit is called
// post-commit and cannot propagate errors; write failures go to the
// logger and the event is dropped.
type Sink struct {
	storage Storage
	logger  uniswapv2.Logger
}

func NewSink(storage Storage, logger uniswapv2.Logger) *Sink {
	return &Sink{storage: storage, logger: logger}
}

func (s *Sink) Emit(event uniswapv2.Event) {
	if err := s.storage.PutEventBatch([]uniswapv2.Event{event}); err != nil {
		s.logger.Error("persist event", "event", event.EventName(), "err", err)
	}
}
