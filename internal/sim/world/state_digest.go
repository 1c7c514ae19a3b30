package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes everything a step can change. Two runs with the same
// seed and the same actions produce the same digest at every step.
func (w *World) StateDigest(step int) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(step))
	w.digestTeams(h, &tmp)
	w.digestEntities(h, &tmp)
	w.digestFacilities(h, &tmp)
	w.digestJobs(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteString(h hashWriter, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

func writeInventory(h hashWriter, tmp *[8]byte, inv Inventory) {
	keys := make([]string, 0, len(inv))
	for k, v := range inv {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	digestWriteI64(h, tmp, int64(len(keys)))
	for _, k := range keys {
		digestWriteString(h, k)
		digestWriteI64(h, tmp, int64(inv[k]))
	}
}

func (w *World) digestTeams(h hashWriter, tmp *[8]byte) {
	for _, t := range w.teams {
		digestWriteString(h, t.Name)
		digestWriteI64(h, tmp, t.Money)
	}
}

func (w *World) digestEntities(h hashWriter, tmp *[8]byte) {
	for _, e := range w.entities {
		digestWriteString(h, e.Name)
		digestWriteF64(h, tmp, e.Location.Lat)
		digestWriteF64(h, tmp, e.Location.Lon)
		digestWriteI64(h, tmp, int64(e.Battery))
		digestWriteI64(h, tmp, int64(e.Route.Len()))
		writeInventory(h, tmp, e.Inventory)
		digestWriteString(h, e.LastAction.Type)
		digestWriteString(h, e.LastResult)
	}
}

func (w *World) digestFacilities(h hashWriter, tmp *[8]byte) {
	for _, f := range w.facilities {
		digestWriteString(h, f.Name())
		switch v := f.(type) {
		case *Shop:
			for _, o := range v.offers {
				digestWriteString(h, o.Item)
				digestWriteI64(h, tmp, int64(o.Amount))
			}
		case *Storage:
			digestWriteI64(h, tmp, int64(v.used))
			for _, t := range w.teams {
				writeInventory(h, tmp, v.stored[t.Name])
				writeInventory(h, tmp, v.delivered[t.Name])
			}
		case *ChargingStation:
			digestWriteI64(h, tmp, int64(v.blackout))
		case *ResourceNode:
			digestWriteI64(h, tmp, int64(v.progress))
		}
	}
}

func (w *World) digestJobs(h hashWriter, tmp *[8]byte) {
	for _, j := range w.jobs {
		digestWriteString(h, j.Name)
		digestWriteString(h, string(j.Status))
		digestWriteI64(h, tmp, int64(j.Reward))
		for _, t := range j.DeliveringTeams() {
			digestWriteString(h, t)
			writeInventory(h, tmp, j.delivered[t])
		}
		if j.Auction != nil && j.Auction.Lowest != nil {
			digestWriteString(h, j.Auction.Lowest.Team)
			digestWriteI64(h, tmp, int64(j.Auction.Lowest.Amount))
		}
	}
}
