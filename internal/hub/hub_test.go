package hub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"board-realtime/internal/model"
	"board-realtime/internal/protocol"
)

const drawTwoPoints = `{"eventType":"DRAW","payload":{"stroke":{"points":[{"x":0,"y":0},{"x":10,"y":10}],"color":"#ff0000","width":3,"mode":"draw"}}}`

func TestEditorDrawReachesOwnerAndIsPersisted(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	editor.sendRaw(drawTwoPoints)

	draws := h.waitFrames(owner, protocol.EventDraw, 1)
	h.sync(owner)
	require.Len(t, owner.framesOf(protocol.EventDraw), 1)

	s := draws[0].stroke(t)
	assert.Equal(t, "ed", s.UserID)
	assert.Equal(t, "ed", draws[0].UserID)
	assert.Equal(t, []model.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, s.Points)
	assert.Equal(t, int64(1), h.strokeCount("b1"))

	h.sync(editor)
	assert.Empty(t, editor.framesOf(protocol.EventDraw))
}

func TestJoinIsAnnouncedToOthersWithRoster(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	joins := h.waitFrames(owner, protocol.EventPresence, 2)
	last := joins[len(joins)-1]
	assert.Equal(t, "ed", last.UserID)
	assert.Equal(t, protocol.TypeUserJoined, last.Type)

	p := last.presence(t)
	assert.Equal(t, protocol.ActionJoin, p.Action)
	var ids []string
	for _, u := range p.ConnectedUsers {
		ids = append(ids, u.UserID)
	}
	assert.ElementsMatch(t, []string{"owner", "ed"}, ids)

	// the joiner gets its own roster snapshot, not a broadcast about itself
	welcome := editor.framesOf(protocol.EventPresence)
	require.Len(t, welcome, 1)
	assert.Len(t, welcome[0].presence(t).ConnectedUsers, 2)
}

func TestViewerMutationsAreDropped(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	viewer, _ := h.connect("b1", guest(model.RoleViewer))

	viewer.sendRaw(drawTwoPoints)
	viewer.sendRaw(`{"eventType":"CLEAR"}`)
	viewer.sendRaw(`{"type":"BOARD_UPDATE","boardId":"b1","data":{"elements":[1]}}`)
	viewer.sendRaw(`{"eventType":"DRAW","payload":{"boardData":{"elements":[2]}}}`)
	h.sync(viewer)
	h.sync(owner)

	assert.Empty(t, owner.framesOf(protocol.EventDraw))
	assert.Empty(t, owner.framesOf(protocol.EventClear))
	assert.Equal(t, int64(0), h.strokeCount("b1"))

	board, err := h.boards.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Nil(t, board.Data)
}

func TestViewerCursorIsRelayed(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	viewer, _ := h.connect("b1", member("vi", model.RoleViewer))

	viewer.sendRaw(`{"type":"CURSOR_UPDATE","boardId":"b1","data":{"x":4,"y":5}}`)

	cursors := h.waitFrames(owner, protocol.EventCursor, 1)
	assert.Equal(t, protocol.TypeCursorUpdate, cursors[0].Type)
	assert.Equal(t, "vi", cursors[0].UserID)
	assert.JSONEq(t, `{"x":4,"y":5,"displayName":"vi","avatarUrl":""}`, string(cursors[0].Payload))

	viewer.sendRaw(`{"eventType":"CURSOR","payload":{"x":"left"}}`)
	h.sync(viewer)
	h.sync(owner)
	assert.Len(t, owner.framesOf(protocol.EventCursor), 1)
}

func TestBacklogReplayInCreationOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := h.clock.Now()

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, h.strokes.Insert(ctx, &model.Stroke{
			StrokeID:  id,
			BoardID:   "b1",
			UserID:    "ed",
			PathData:  model.PathData{Points: []model.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, Mode: model.StrokeModeDraw},
			Color:     "#000000",
			Thickness: 2,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, h.strokes.Insert(ctx, &model.Stroke{
		StrokeID: "elsewhere", BoardID: "b2", UserID: "ed",
		PathData: model.PathData{Points: []model.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}},
		Color:    "#000000", Thickness: 2, CreatedAt: base,
	}))

	joiner, _ := h.connect("b1", member("owner", model.RoleOwner))

	frames := joiner.frames()
	require.Len(t, frames, 4)
	assert.Equal(t, protocol.EventPresence, frames[0].EventType)

	var ids []string
	for _, fr := range frames[1:] {
		require.Equal(t, protocol.EventDraw, fr.EventType)
		ids = append(ids, fr.stroke(t).ID)
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
}

func TestStrokeRoundTripsThroughReplay(t *testing.T) {
	h := newHarness(t)
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	editor.sendRaw(drawTwoPoints)
	h.sync(editor)
	h.clock.Add(time.Second)
	editor.sendRaw(`{"eventType":"DRAW","payload":{"stroke":{"points":[{"x":1,"y":1},{"x":2,"y":2}],"thickness":100}}}`)
	h.sync(editor)
	h.clock.Add(time.Second)
	editor.sendRaw(`{"eventType":"DRAW","payload":{"stroke":{"points":[{"x":1,"y":1},{"x":2,"y":2}],"width":0,"mode":"erase"}}}`)
	h.sync(editor)
	require.Equal(t, int64(3), h.strokeCount("b1"))

	late, _ := h.connect("b1", member("owner", model.RoleOwner))
	draws := late.framesOf(protocol.EventDraw)
	require.Len(t, draws, 3)

	first := draws[0].stroke(t)
	assert.Equal(t, []model.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, first.Points)
	assert.Equal(t, "#ff0000", first.Color)
	assert.Equal(t, 3, first.Width)
	assert.Equal(t, model.StrokeModeDraw, first.Mode)

	assert.Equal(t, 64, draws[1].stroke(t).Width)
	assert.Equal(t, 1, draws[2].stroke(t).Width)
	assert.Equal(t, model.StrokeModeErase, draws[2].stroke(t).Mode)
}

// CLEAR is broadcast only, so history recorded before it is still replayed.
func TestClearKeepsHistoryForLateJoiners(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	editor.sendRaw(drawTwoPoints)
	editor.sendRaw(`{"eventType":"CLEAR"}`)

	clears := h.waitFrames(owner, protocol.EventClear, 1)
	assert.Equal(t, "ed", clears[0].UserID)
	h.hub.Flush()

	late, _ := h.connect("b1", member("late", model.RoleViewer))
	assert.Len(t, late.framesOf(protocol.EventDraw), 1)
}

func TestLegacyBoardUpdateOverwritesBoardData(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	editor.sendRaw(`{"type":"BOARD_UPDATE","boardId":"other","data":{"elements":["wrong board"]}}`)
	editor.sendRaw(`{"type":"board_update","boardId":"b1","data":{"elements":[1]},"timestamp":1}`)

	updates := h.waitFrames(owner, protocol.EventDraw, 1)
	h.sync(owner)
	require.Len(t, owner.framesOf(protocol.EventDraw), 1)
	assert.Equal(t, protocol.TypeBoardUpdate, updates[0].Type)
	assert.JSONEq(t, `{"elements":[1]}`, string(updates[0].Data))
	assert.JSONEq(t, `{"boardData":{"elements":[1]}}`, string(updates[0].Payload))

	h.hub.Flush()
	board, err := h.boards.Get(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, board.Data)
	assert.JSONEq(t, `{"elements":[1]}`, *board.Data)
	assert.Equal(t, int64(0), h.strokeCount("b1"))
}

func TestAnonymousSessionsAreNeverPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	anon, anonClient := h.connect("b1", guest(model.RoleEditor))

	anon.sendRaw(drawTwoPoints)
	anon.sendRaw(`{"eventType":"DRAW","payload":{"boardData":{"elements":[1]}}}`)
	h.waitFrames(owner, protocol.EventDraw, 2)

	h.hub.Flush()
	rows, err := h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "owner", rows[0].UserID)
	assert.Equal(t, int64(0), h.strokeCount("b1"))

	board, err := h.boards.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, board.Data)

	anonID := anonClient.session.UserID()
	require.NoError(t, anon.Close())
	require.Eventually(t, func() bool {
		return len(owner.presenceOf(t, protocol.ActionLeave, anonID)) == 1
	}, 2*time.Second, time.Millisecond)

	h.hub.Flush()
	rows, err = h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDurablePresenceFollowsConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	h.hub.Flush()
	rows, err := h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, editor.Close())
	require.Eventually(t, func() bool {
		return len(owner.presenceOf(t, protocol.ActionLeave, "ed")) == 1
	}, 2*time.Second, time.Millisecond)

	leave := owner.presenceOf(t, protocol.ActionLeave, "ed")[0]
	assert.Equal(t, protocol.TypeUserLeft, leave.Type)
	users := leave.presence(t).ConnectedUsers
	require.Len(t, users, 1)
	assert.Equal(t, "owner", users[0].UserID)

	h.hub.Flush()
	rows, err = h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "owner", rows[0].UserID)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, editorClient := h.connect("b1", member("ed", model.RoleEditor))

	h.hub.disconnect(editorClient, "test")
	h.hub.disconnect(editorClient, "test")

	assert.True(t, editor.isClosed())
	_, ok := h.hub.registry.Unregister(editorClient)
	assert.False(t, ok)

	h.sync(owner)
	assert.Len(t, owner.presenceOf(t, protocol.ActionLeave, "ed"), 1)

	_, conns := h.hub.Stats()
	assert.Equal(t, 1, conns)
}

func TestPresenceLeaveEndsConnection(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	editor.sendRaw(`{"eventType":"PRESENCE","payload":{"action":"leave"}}`)

	require.Eventually(t, editor.isClosed, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return len(owner.presenceOf(t, protocol.ActionLeave, "ed")) == 1
	}, 2*time.Second, time.Millisecond)

	h.sync(owner)
	assert.Len(t, owner.presenceOf(t, protocol.ActionLeave, "ed"), 1)
}

func TestStaleUserIsEvictedOnceAndRejoinsOnPing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner, ownerClient := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	h.clock.Add(31 * time.Second)
	h.sync(owner)

	h.hub.tick(ownerClient)
	h.hub.tick(ownerClient)

	assert.Len(t, owner.presenceOf(t, protocol.ActionLeave, "ed"), 1)
	assert.False(t, editor.isClosed())

	roster := h.hub.Roster("b1")
	require.Len(t, roster, 1)
	assert.Equal(t, "owner", roster[0].UserID())

	h.hub.Flush()
	rows, err := h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "owner", rows[0].UserID)

	h.sync(editor)
	require.Eventually(t, func() bool {
		return len(owner.presenceOf(t, protocol.ActionJoin, "ed")) == 2
	}, 2*time.Second, time.Millisecond)
	assert.Len(t, h.hub.Roster("b1"), 2)

	h.hub.Flush()
	rows, err = h.presence.ListActive(ctx, "b1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestHeartbeatTickSendsKeepAlive(t *testing.T) {
	h := newHarness(t)
	owner, ownerClient := h.connect("b1", member("owner", model.RoleOwner))

	h.hub.tick(ownerClient)

	pongs := owner.framesOf(protocol.EventPong)
	require.Len(t, pongs, 1)
	assert.Equal(t, protocol.TypePong, pongs[0].Type)
	assert.Empty(t, owner.presenceOf(t, protocol.ActionLeave, "owner"))
}

func TestHeartbeatTickerDrivesSweep(t *testing.T) {
	h := newHarness(t)
	h.hub.opts.HeartbeatInterval = 10 * time.Second

	owner, _ := h.connect("b1", member("owner", model.RoleOwner))

	// four intervals without any inbound activity
	for i := 0; i < 4; i++ {
		h.clock.Add(10 * time.Second)
	}

	require.Eventually(t, func() bool {
		return len(owner.presenceOf(t, protocol.ActionLeave, "owner")) == 1
	}, 2*time.Second, time.Millisecond)
	assert.NotEmpty(t, owner.framesOf(protocol.EventPong))
	assert.False(t, owner.isClosed())
}

func TestDeadPeerIsEvictedWithoutDisturbingOthers(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect("b1", member("a", model.RoleEditor))
	b, _ := h.connect("b1", member("b", model.RoleOwner))
	c, _ := h.connect("b1", member("c", model.RoleEditor))

	a.breakWrites()
	c.sendRaw(`{"eventType":"CURSOR","payload":{"x":1,"y":1}}`)
	c.sendRaw(`{"eventType":"CURSOR","payload":{"x":2,"y":2}}`)

	h.waitFrames(b, protocol.EventCursor, 2)
	require.Eventually(t, a.isClosed, 2*time.Second, time.Millisecond)

	h.sync(b)
	assert.Len(t, b.presenceOf(t, protocol.ActionLeave, "a"), 1)
	assert.Len(t, b.framesOf(protocol.EventCursor), 2)

	_, conns := h.hub.Stats()
	assert.Equal(t, 2, conns)
}

func TestSecondConnectionOfSameUserSharesRosterEntry(t *testing.T) {
	h := newHarness(t)
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))
	tab1, _ := h.connect("b1", member("owner", model.RoleOwner))
	tab2, _ := h.connect("b1", member("owner", model.RoleOwner))

	h.sync(editor)
	assert.Len(t, editor.presenceOf(t, protocol.ActionJoin, "owner"), 1)
	assert.Len(t, h.hub.Roster("b1"), 2)

	require.NoError(t, tab1.Close())
	require.Eventually(t, func() bool {
		_, conns := h.hub.Stats()
		return conns == 2
	}, 2*time.Second, time.Millisecond)
	h.sync(editor)
	assert.Empty(t, editor.presenceOf(t, protocol.ActionLeave, "owner"))

	require.NoError(t, tab2.Close())
	require.Eventually(t, func() bool {
		return len(editor.presenceOf(t, protocol.ActionLeave, "owner")) == 1
	}, 2*time.Second, time.Millisecond)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))

	owner.sendRaw(`garbage`)
	owner.sendRaw(`{"eventType":"TELEPORT"}`)
	owner.sendRaw(`{"eventType":"DRAW","payload":{"stroke":{"points":[{"x":1,"y":1}]}}}`)
	h.sync(owner)

	assert.False(t, owner.isClosed())
	assert.Equal(t, int64(0), h.strokeCount("b1"))
}

func TestBoardsArePartitioned(t *testing.T) {
	h := newHarness(t)
	one, _ := h.connect("b1", member("owner", model.RoleOwner))
	two, _ := h.connect("b2", member("ed", model.RoleEditor))

	two.sendRaw(`{"eventType":"CURSOR","payload":{"x":1,"y":1}}`)
	h.sync(two)
	h.sync(one)

	assert.Empty(t, one.framesOf(protocol.EventCursor))
	assert.Empty(t, one.presenceOf(t, protocol.ActionJoin, "ed"))

	boards, conns := h.hub.Stats()
	assert.Equal(t, 2, boards)
	assert.Equal(t, 2, conns)
}

func TestCloseDisconnectsEveryoneAndRefusesNewConnections(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	editor, _ := h.connect("b1", member("ed", model.RoleEditor))

	h.hub.Close()

	assert.True(t, owner.isClosed())
	assert.True(t, editor.isClosed())
	_, conns := h.hub.Stats()
	assert.Equal(t, 0, conns)

	late := newFakeConn()
	h.hub.Serve(late, "b1", member("late", model.RoleViewer))
	assert.True(t, late.isClosed())
}

func TestHungMirrorDoesNotCostStrokes(t *testing.T) {
	h := newHarness(t, func(_ *harness, s *Stores, o *Options) {
		s.Mirror = hungMirror{}
		o.PersistQueueSize = 16
		o.PersistTimeout = time.Second
		o.MirrorTimeout = 50 * time.Millisecond
	})

	var editors []*fakeConn
	for i := 0; i < 10; i++ {
		conn, client := h.connect("b1", member(fmt.Sprintf("ed%d", i), model.RoleEditor))
		editors = append(editors, conn)
		h.hub.tick(client)
	}

	editors[0].sendRaw(drawTwoPoints)
	h.sync(editors[0])

	assert.Equal(t, int64(1), h.strokeCount("b1"))
	dropped, _ := h.hub.writer.Stats()
	assert.Zero(t, dropped)
}

func TestReplayIncludesStrokeStillBeingStored(t *testing.T) {
	gated := &gatedStrokes{gate: make(chan struct{})}
	h := newHarness(t, func(h *harness, s *Stores, _ *Options) {
		gated.StrokeStore = h.strokes
		s.Strokes = gated
	})
	released := false
	release := func() {
		if !released {
			released = true
			close(gated.gate)
		}
	}
	t.Cleanup(release)

	editor, _ := h.connect("b1", member("ed", model.RoleEditor))
	editor.sendRaw(`{"eventType":"DRAW","payload":{"stroke":{"id":"s-pending","points":[{"x":0,"y":0},{"x":5,"y":5}]}}}`)
	h.sync(editor)

	owner, _ := h.connect("b1", member("owner", model.RoleOwner))
	h.sync(owner)
	draws := owner.framesOf(protocol.EventDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, "s-pending", draws[0].stroke(t).ID)

	release()
	assert.Equal(t, int64(1), h.strokeCount("b1"))

	late, _ := h.connect("b1", member("late", model.RoleViewer))
	h.sync(late)
	assert.Len(t, late.framesOf(protocol.EventDraw), 1)
}

func TestAnonymousSessionsAreNotMirrored(t *testing.T) {
	mirror := &recordingMirror{}
	h := newHarness(t, func(_ *harness, s *Stores, _ *Options) {
		s.Mirror = mirror
	})

	_, memberClient := h.connect("b1", member("owner", model.RoleOwner))
	anon, anonClient := h.connect("b1", guest(model.RoleEditor))
	h.hub.tick(memberClient)
	h.hub.tick(anonClient)
	anon.sendRaw(`{"eventType":"PRESENCE","payload":{"action":"leave"}}`)
	require.Eventually(t, anon.isClosed, 2*time.Second, time.Millisecond)
	h.hub.Flush()

	joins, touches, leaves := mirror.seen()
	assert.Equal(t, []string{"owner"}, joins)
	assert.Equal(t, []string{"owner"}, touches)
	assert.Empty(t, leaves)
}
