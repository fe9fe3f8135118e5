package server

import (
	"context"
	"errors"
	"fmt"

	"arena/server/internal/net/proto"
	"arena/server/internal/registry"
	"arena/server/internal/world"
	"arena/server/logging"
	logginglifecycle "arena/server/logging/lifecycle"
)

// join registers a new player for sess. Inside one registry transaction the
// session is queued a player_new for every existing player, then added, then
// announced to everyone including itself. No other join, leave, intent or
// tick can interleave, so the catch-up is exact and precedes the announcement
// on every connection.
func (h *Hub) join(ctx context.Context, sess Session, name string) error {
	player := world.NewPlayer(name, h.config.World.Center(), h.clock.Now())

	var (
		err      error
		players  int
		failures []failedDelivery
	)
	h.registry.Do(func(tx *registry.Tx) {
		if h.config.UniqueNames && tx.HasName(name) {
			err = fmt.Errorf("%w: %q", ErrDuplicateName, name)
			return
		}

		existing := tx.Entries()
		if len(existing) > 0 {
			catchUp := make([][]byte, 0, len(existing))
			for _, entry := range existing {
				data, encErr := proto.EncodePlayerNew(entry.Player.Status())
				if encErr != nil {
					err = fmt.Errorf("encode catch-up for %q: %w", entry.Player.Name(), encErr)
					return
				}
				catchUp = append(catchUp, data)
			}
			if sendErr := sess.SendBatch(catchUp); sendErr != nil {
				err = fmt.Errorf("send catch-up: %w", sendErr)
				return
			}
			size := 0
			for _, data := range catchUp {
				size += len(data)
			}
			h.telemetry.RecordDelivery(len(catchUp), size)
		}

		if addErr := tx.Add(sess, player); addErr != nil {
			err = addErr
			return
		}

		announce, encErr := proto.EncodePlayerNew(player.Status())
		if encErr != nil {
			tx.Remove(sess.ID())
			err = fmt.Errorf("encode announcement: %w", encErr)
			return
		}
		players = tx.Len()
		h.telemetry.RecordJoin(players)
		failures = h.fanOutLocked(tx.Connections(), proto.TypePlayerNew, announce)
	})
	if err != nil {
		return err
	}

	pos := player.Position()
	logginglifecycle.PlayerJoined(ctx, h.sessionPublisher(sess), playerRef(sess), logginglifecycle.PlayerJoinedPayload{
		Name:    name,
		Spawn:   [2]float64(pos),
		Players: players,
	})
	h.dropFailed(ctx, failures)
	return nil
}

// leave removes sess from the registry and tells the remaining players. It
// reports false when sess was not registered, in which case nothing is sent.
func (h *Hub) leave(ctx context.Context, sess Session, reason CloseReason) bool {
	var (
		player   *world.Player
		removed  bool
		players  int
		failures []failedDelivery
		encErr   error
	)
	h.registry.Do(func(tx *registry.Tx) {
		player, removed = tx.Remove(sess.ID())
		if !removed {
			return
		}
		players = tx.Len()
		h.telemetry.RecordLeave(players)
		if players == 0 {
			return
		}
		var data []byte
		data, encErr = proto.EncodePlayerPart(player.Name())
		if encErr != nil {
			return
		}
		failures = h.fanOutLocked(tx.Connections(), proto.TypePlayerPart, data)
	})
	if !removed {
		return false
	}
	if encErr != nil {
		h.logger.Printf("[hub] failed to encode departure of %q: %v", player.Name(), encErr)
	}

	logginglifecycle.PlayerDisconnected(ctx, h.publisher, playerRef(sess), logginglifecycle.PlayerDisconnectedPayload{
		Name:    player.Name(),
		Reason:  reason.String(),
		Players: players,
	})
	h.dropFailed(ctx, failures)
	return true
}

func (h *Hub) rejectJoin(ctx context.Context, sess Session, err error, reason CloseReason) {
	h.telemetry.RecordJoinRejected()
	if errors.Is(err, registry.ErrDuplicateConnection) {
		h.logger.Printf("[hub] connection %s registered twice: %v", sess.ID(), err)
	}
	logginglifecycle.JoinRejected(ctx, h.sessionPublisher(sess), connectionRef(sess.ID()), logginglifecycle.JoinRejectedPayload{
		Reason: err.Error(),
	})
	sess.Close(reason)
}

func playerRef(sess Session) logging.EntityRef {
	return logging.PlayerRef(sess.ID().String())
}
