package hub

import (
	"sort"
	"sync"

	"board-realtime/internal/protocol"
)

// inflight strokes already broadcast whose insert has not finished yet.
// Replay merges them so a peer joining in that window still gets them.
type inflight struct {
	mu     sync.Mutex
	boards map[string]map[string]protocol.Stroke
}

func newInflight() *inflight {
	return &inflight{boards: make(map[string]map[string]protocol.Stroke)}
}

func (f *inflight) add(boardID string, s protocol.Stroke) {
	f.mu.Lock()
	defer f.mu.Unlock()

	strokes, ok := f.boards[boardID]
	if !ok {
		strokes = make(map[string]protocol.Stroke)
		f.boards[boardID] = strokes
	}
	strokes[s.ID] = s
}

// done 저장이 끝났거나(성공/실패) job이 버려진 스트로크 제거
func (f *inflight) done(boardID, strokeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	strokes, ok := f.boards[boardID]
	if !ok {
		return
	}
	delete(strokes, strokeID)
	if len(strokes) == 0 {
		delete(f.boards, boardID)
	}
}

// snapshot in replay order (createdAt, id)
func (f *inflight) snapshot(boardID string) []protocol.Stroke {
	f.mu.Lock()
	out := make([]protocol.Stroke, 0, len(f.boards[boardID]))
	for _, s := range f.boards[boardID] {
		out = append(out, s)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
