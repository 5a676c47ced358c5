// Package diskcache implements the per-Filter persistence adapter of spec
// §4.4: it translates a filter's (address set, topic set) or (from/to
// address sets) into Store-backed [cachedFrom, cachedThru] rows and answers
// isCachedThru / checkAndSelect / setMetadata against them.
package diskcache

import (
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// noneAddress is the literal sentinel spec §3/§6.1 uses for "all
// addresses" LogCacheInfo rows.
const noneAddress = "None"

// LogKeyShape describes one LogFilter's address+topic configuration. An
// empty Addresses means "no address filter" (key address = "None").
type LogKeyShape struct {
	Addresses []common.Address
	Topic0    *common.Hash   // the fixed topic0, if any
	FullTopics [][]common.Hash // the full topic position array, if more than topic0 is pinned
}

func sortedHexes(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	sort.Strings(out)
	return out
}

// topicsJSON renders the three possible topics-column shapes spec §4.4
// describes: null (no topic constraint), [topic0], or the full topic array.
func topicsJSON(topic0 *common.Hash, full [][]common.Hash) (string, error) {
	if len(full) > 0 {
		rows := make([][]string, len(full))
		for i, set := range full {
			hexes := make([]string, len(set))
			for j, h := range set {
				hexes[j] = h.Hex()
			}
			rows[i] = hexes
		}
		b, err := json.Marshal(rows)
		return string(b), err
	}
	if topic0 != nil {
		b, err := json.Marshal([]string{topic0.Hex()})
		return string(b), err
	}
	b, err := json.Marshal(nil)
	return string(b), err
}

// topic0OnlyJSON renders the narrower [topic0] key even when FullTopics is
// also set, so reads can fall back to it per spec §4.4: "If only topic0 is
// fixed, both [topic0] and full-topics keys are checked on read."
func topic0OnlyJSON(topic0 *common.Hash) (string, bool, error) {
	if topic0 == nil {
		return "", false, nil
	}
	b, err := json.Marshal([]string{topic0.Hex()})
	return string(b), true, err
}
