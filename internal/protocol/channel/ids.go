package channel

import "fmt"

// ID names one logical message type on the wire.
type ID uint32

// Channel ids in wire order. Unused must never be dispatched and Count must
// remain last.
const (
	Unused ID = iota
	Ready
	TechniteStateChunk
	InstructTechnites
	TechniteInstructionChunk
	NodeChunk
	GridConfig
	GridDelta
	WorldInfo
	RequestNextRound
	Count
)

// Direction tells which peer originates traffic on a channel.
type Direction uint8

const (
	DirectionNone Direction = iota
	ClientToServer
	ServerToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "c2s"
	case ServerToClient:
		return "s2c"
	default:
		return "none"
	}
}

type info struct {
	name      string
	direction Direction
	signal    bool
}

var infos = [Count]info{
	Unused:                   {name: "unused"},
	Ready:                    {name: "ready", direction: ClientToServer, signal: true},
	TechniteStateChunk:       {name: "technite_state_chunk", direction: ServerToClient},
	InstructTechnites:        {name: "instruct_technites", direction: ServerToClient, signal: true},
	TechniteInstructionChunk: {name: "technite_instruction_chunk", direction: ClientToServer},
	NodeChunk:                {name: "node_chunk", direction: ServerToClient},
	GridConfig:               {name: "grid_config", direction: ServerToClient},
	GridDelta:                {name: "grid_delta", direction: ServerToClient},
	WorldInfo:                {name: "world_info", direction: ServerToClient},
	RequestNextRound:         {name: "request_next_round", direction: ClientToServer, signal: true},
}

func (id ID) Valid() bool {
	return id > Unused && id < Count
}

func (id ID) String() string {
	if id < Count {
		return infos[id].name
	}
	return fmt.Sprintf("channel(%d)", uint32(id))
}

func (id ID) Direction() Direction {
	if !id.Valid() {
		return DirectionNone
	}
	return infos[id].direction
}

// IsSignal reports whether the channel carries no payload.
func (id ID) IsSignal() bool {
	return id.Valid() && infos[id].signal
}
