// Package chat holds the authoritative in-memory state of contacts,
// conversations and messages, written through to a storage.Adapter after
// every committed mutation.
package chat

import (
	"github.com/rs/zerolog"

	"Chatter/pkg/core"
	"Chatter/pkg/metrics"
	"Chatter/pkg/storage"
)

// persister writes blobs and turns failures into warnings. In-memory state
// stays authoritative when a write fails; nothing is rolled back or retried.
type persister struct {
	adapter storage.Adapter
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func (p persister) save(key string, v any) []core.ChangeEvent {
	return p.result(key, storage.SaveJSON(p.adapter, key, v))
}

func (p persister) remove(key string) []core.ChangeEvent {
	return p.result(key, storage.Delete(p.adapter, key))
}

func (p persister) result(key string, err error) []core.ChangeEvent {
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("persist_failed")
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		return []core.ChangeEvent{core.PersistWarningEvent{Key: key, Err: err}}
	}
	if p.metrics != nil {
		p.metrics.PersistWrites.Inc()
	}
	return nil
}

func publishAll(p core.Publisher, events []core.ChangeEvent) {
	for _, e := range events {
		p.Publish(e)
	}
}
