package ws

import "encoding/json"

// Agent is a connected browser tab that hosts the vendor call SDK.
type Agent interface {
	ID() string
	SendCommand(cmd Command) error
	Close() error
}

// Command is sent to an agent; the agent answers with a reply carrying the
// same ID.
type Command struct {
	ID       string          `json:"id"`
	ClientID string          `json:"client_id"`
	Cmd      string          `json:"cmd"`
	Args     json.RawMessage `json:"args,omitempty"`
}

const (
	CmdJoin             = "join"
	CmdLeave            = "leave"
	CmdDestroy          = "destroy"
	CmdSetTopology      = "set_network_topology"
	CmdSetLocalAudio    = "set_local_audio"
	CmdSetLocalVideo    = "set_local_video"
	CmdSetInputDevices  = "set_input_devices"
	CmdUpdateInputs     = "update_input_settings"
	CmdEnumerateDevices = "enumerate_devices"
	CmdParticipants     = "participants"
)

const (
	InboundReply = "reply"
	InboundEvent = "event"
)

// Inbound is anything an agent sends back: a command reply or an SDK event.
type Inbound struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	ClientID     string          `json:"client_id,omitempty"`
	Event        string          `json:"event,omitempty"`
	MeetingState string          `json:"meeting_state,omitempty"`
	FromID       string          `json:"from_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type joinArgs struct {
	URL               string `json:"url"`
	AudioSource       string `json:"audio_source,omitempty"`
	VideoSource       string `json:"video_source,omitempty"`
	DevicePermissions string `json:"device_permissions,omitempty"`
}

type topologyArgs struct {
	Topology string `json:"topology"`
}

type enabledArgs struct {
	Enabled bool `json:"enabled"`
}
