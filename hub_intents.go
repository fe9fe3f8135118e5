package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"arena/server/internal/net/proto"
	"arena/server/internal/registry"
	"arena/server/internal/world"
	"arena/server/internal/world/state"
	"arena/server/logging"
	loggingcombat "arena/server/logging/combat"
	loggingnetwork "arena/server/logging/network"
)

// HandleMessage applies one inbound frame from a joined session. It returns
// an error only when the frame cannot be decoded; the caller must then close
// the session. Unknown actions are reported and otherwise ignored.
func (h *Hub) HandleMessage(ctx context.Context, sess Session, payload []byte) error {
	intent, err := proto.DecodeIntent(payload)
	switch {
	case errors.Is(err, proto.ErrUnsupportedAction):
		h.telemetry.RecordUnsupported()
		h.logger.Printf("[hub] unsupported action %q from %s", intent.Action, sess.ID())
		loggingnetwork.UnsupportedIntent(ctx, h.publisher, playerRef(sess), loggingnetwork.UnsupportedIntentPayload{
			Action: intent.Action,
		})
		return nil
	case err != nil:
		h.reportMalformed(ctx, sess, len(payload), err)
		return err
	}

	switch intent.Action {
	case proto.ActionMove:
		h.move(ctx, sess.ID(), intent.Speed)
	case proto.ActionFire:
		h.fire(ctx, sess.ID())
	}
	return nil
}

// move replaces the player's velocity and broadcasts its state to everyone.
func (h *Hub) move(ctx context.Context, id uuid.UUID, speed state.Vec2) bool {
	var (
		found    bool
		failures []failedDelivery
	)
	h.registry.Do(func(tx *registry.Tx) {
		player, ok := tx.Player(id)
		if !ok {
			return
		}
		found = true
		player.Move(speed)
		failures = h.broadcastStatusLocked(tx, player)
	})
	if found {
		h.telemetry.RecordMove()
	}
	h.dropFailed(ctx, failures)
	return found
}

// fire resolves a shot from the player owned by id. A shot inside the
// cooldown changes nothing and is not answered. A shot that hits broadcasts
// the firer's state once.
func (h *Hub) fire(ctx context.Context, id uuid.UUID) (world.FireResult, bool) {
	now := h.clock.Now()
	var (
		found    bool
		result   world.FireResult
		targets  []logging.EntityRef
		hits     int
		failures []failedDelivery
	)
	h.registry.Do(func(tx *registry.Tx) {
		player, ok := tx.Player(id)
		if !ok {
			return
		}
		found = true
		result = player.TryFire(now, tx.Players(), h.config.World)
		if result.Rejected {
			return
		}
		hits = player.Hits()
		if !result.Hit() {
			return
		}
		targets = targetRefs(tx, result.Targets)
		failures = h.broadcastStatusLocked(tx, player)
	})
	if !found {
		return result, false
	}

	h.telemetry.RecordFire(result.Hit(), result.Rejected)
	actor := logging.PlayerRef(id.String())
	if result.Rejected {
		loggingcombat.FireRejected(ctx, h.publisher, actor, loggingcombat.FireRejectedPayload{
			RemainingMillis: result.Remaining.Milliseconds(),
		})
	} else {
		loggingcombat.FireResolved(ctx, h.publisher, actor, targets, loggingcombat.FireResolvedPayload{
			Hit:  result.Hit(),
			Hits: hits,
		})
	}
	h.dropFailed(ctx, failures)
	return result, true
}

// broadcastStatusLocked sends player's current state to every connection.
func (h *Hub) broadcastStatusLocked(tx *registry.Tx, player *world.Player) []failedDelivery {
	data, err := proto.EncodePlayerState(player.Status())
	if err != nil {
		h.logger.Printf("[hub] failed to encode state of %q: %v", player.Name(), err)
		return nil
	}
	return h.fanOutLocked(tx.Connections(), proto.TypePlayerState, data)
}

func targetRefs(tx *registry.Tx, targets []*world.Player) []logging.EntityRef {
	if len(targets) == 0 {
		return nil
	}
	owners := make(map[*world.Player]uuid.UUID, tx.Len())
	for _, entry := range tx.Entries() {
		owners[entry.Player] = entry.Conn.ID()
	}
	refs := make([]logging.EntityRef, 0, len(targets))
	for _, target := range targets {
		refs = append(refs, logging.PlayerRef(owners[target].String()))
	}
	return refs
}
