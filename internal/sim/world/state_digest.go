package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes everything that affects future ticks. Replays compare it
// against the digest recorded in the tick log.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.nextPlayerNum.Load())
	digestWriteU64(h, &tmp, w.nextBuildingNum.Load())

	w.digestPlayers(h, &tmp)
	w.digestBuildings(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestPlayers(h hashWriter, tmp *[8]byte) {
	ids := w.sortedPlayerIDs()
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		p := w.players[id]
		digestWriteString(h, tmp, p.ID)
		digestWriteString(h, tmp, p.Name)
		digestWriteString(h, tmp, p.Faction)
		digestWriteI64(h, tmp, int64(p.Cash))
		digestWriteString(h, tmp, p.WinState)

		others := make([]string, 0, len(p.Stances))
		for k := range p.Stances {
			others = append(others, k)
		}
		sort.Strings(others)
		digestWriteU64(h, tmp, uint64(len(others)))
		for _, k := range others {
			digestWriteString(h, tmp, k)
			digestWriteString(h, tmp, p.Stances[k])
		}
	}
}

func (w *World) digestBuildings(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.buildingIDs)))
	for _, id := range w.buildingIDs {
		b := w.buildings[id]
		digestWriteString(h, tmp, b.id)
		digestWriteString(h, tmp, b.Type())
		digestWriteString(h, tmp, b.owner)
		digestWriteI64(h, tmp, int64(b.hp))
		if b.repairs == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		digestWriteI64(h, tmp, int64(b.repairs.Countdown()))
		members := b.repairs.Members()
		digestWriteU64(h, tmp, uint64(len(members)))
		for _, m := range members {
			digestWriteString(h, tmp, m)
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}
