// Package storage persists the engine's committed events so external
// consumers can replay every observable state delta.
package storage

import "github.com/defistate/amm-engine-go/protocols/uniswapv2"

// Storage defines a durable sink for committed engine events.
type Storage interface {
	PutEventBatch(events []uniswapv2.Event) error
}
