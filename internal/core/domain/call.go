package domain

import "fmt"

// InputSource selects what a call client feeds into a local track.
type InputSource string

const (
	InputDefault InputSource = "default"
	InputCustom  InputSource = "custom" // a track acquired by the page itself
	InputOff     InputSource = "off"
)

func ParseInputSource(s string) (InputSource, error) {
	switch s {
	case "", "default":
		return InputDefault, nil
	case "custom":
		return InputCustom, nil
	case "off", "false":
		return InputOff, nil
	}
	return "", fmt.Errorf("unknown input source %q", s)
}

type Topology string

const (
	TopologyDefault Topology = ""
	TopologySFU     Topology = "sfu"
	TopologyPeer    Topology = "peer"
)

func ParseTopology(s string) (Topology, error) {
	switch Topology(s) {
	case TopologyDefault, TopologySFU, TopologyPeer:
		return Topology(s), nil
	}
	return "", fmt.Errorf("unknown topology %q", s)
}

type DevicePermissions string

const (
	PermissionsPrompt DevicePermissions = "prompt"
	PermissionsSkip   DevicePermissions = "skip"
)

// JoinOptions enumerates the recognized ways of joining a room.
type JoinOptions struct {
	AudioSource InputSource
	VideoSource InputSource
	// Topology is switched to right after the join succeeds.
	Topology          Topology
	DevicePermissions DevicePermissions
}

func DefaultJoinOptions() JoinOptions {
	return JoinOptions{
		AudioSource:       InputDefault,
		VideoSource:       InputDefault,
		DevicePermissions: PermissionsPrompt,
	}
}

// MeetingState is what a call client reports about its own connection.
type MeetingState string

const (
	MeetingNew     MeetingState = "new"
	MeetingJoining MeetingState = "joining-meeting"
	MeetingJoined  MeetingState = "joined-meeting"
	MeetingLeft    MeetingState = "left-meeting"
	MeetingError   MeetingState = "error"
)

type InputDevices struct {
	AudioSource   InputSource `json:"audio_source,omitempty"`
	VideoSource   InputSource `json:"video_source,omitempty"`
	AudioDeviceID string      `json:"audio_device_id,omitempty"`
	VideoDeviceID string      `json:"video_device_id,omitempty"`
}

type VideoProcessor string

const (
	VideoProcessorNone  VideoProcessor = "none"
	VideoProcessorBlur  VideoProcessor = "background-blur"
	VideoProcessorImage VideoProcessor = "background-image"
)

type AudioProcessor string

const (
	AudioProcessorNone              AudioProcessor = "none"
	AudioProcessorNoiseCancellation AudioProcessor = "noise-cancellation"
)

// InputSettings configures processors on the local tracks. Empty fields
// leave the current processor untouched.
type InputSettings struct {
	Video           VideoProcessor `json:"video_processor,omitempty"`
	BlurStrength    float64        `json:"blur_strength,omitempty"`
	BackgroundImage string         `json:"background_image,omitempty"`
	Audio           AudioProcessor `json:"audio_processor,omitempty"`
}

type DeviceKind string

const (
	DeviceAudioInput  DeviceKind = "audioinput"
	DeviceVideoInput  DeviceKind = "videoinput"
	DeviceAudioOutput DeviceKind = "audiooutput"
)

type Device struct {
	ID    string     `json:"device_id"`
	Kind  DeviceKind `json:"kind"`
	Label string     `json:"label"`
}

type TrackState struct {
	State string `json:"state"`
	Off   bool   `json:"off"`
}

type Participant struct {
	ID    string     `json:"id"`
	Local bool       `json:"local"`
	Audio TrackState `json:"audio"`
	Video TrackState `json:"video"`
}
