package proto

import "github.com/invopop/jsonschema"

// Schemas returns JSON schemas for every message kind on the wire, keyed by
// direction and shape.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	client := reflector.Reflect(new(ClientMessage))
	client.Title = "Client intent"
	client.Description = "Frames sent by a client after the join name."

	player := reflector.Reflect(new(PlayerMessage))
	player.Title = "Player state"
	player.Description = "player_new and player_state broadcasts."

	part := reflector.Reflect(new(PartMessage))
	part.Title = "Player departure"
	part.Description = "player_part broadcast."

	return map[string]*jsonschema.Schema{
		"client": client,
		"player": player,
		"part":   part,
	}
}
