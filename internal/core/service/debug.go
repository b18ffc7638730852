package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCommand = errors.New("unknown debug command")
	ErrBadArgs        = errors.New("bad debug command arguments")
	ErrNoDevice       = errors.New("no matching input device")
)

type ClientAccessor interface {
	CurrentClient(ctx context.Context) (port.CallClient, error)
}

type DebugHandler func(ctx context.Context, client port.CallClient, args []string) (any, error)

// DebugCommands is the developer console: manual device, input and mute
// toggles against whatever client the session currently owns.
type DebugCommands struct {
	clients  ClientAccessor
	handlers map[string]DebugHandler
}

func NewDebugCommands(clients ClientAccessor) *DebugCommands {
	d := &DebugCommands{
		clients:  clients,
		handlers: make(map[string]DebugHandler),
	}
	d.Register("log-remote-tracks", logTracks(false))
	d.Register("log-local-tracks", logTracks(true))
	d.Register("set-input-audio", setInputAudio)
	d.Register("set-input-video", setInputVideo)
	d.Register("mute-audio", localAudio(false))
	d.Register("unmute-audio", localAudio(true))
	d.Register("mute-video", localVideo(false))
	d.Register("unmute-video", localVideo(true))
	d.Register("set-topology", setTopology)
	d.Register("blur-background", blurBackground)
	d.Register("image-background", imageBackground)
	d.Register("clear-background", updateInputs(domain.InputSettings{Video: domain.VideoProcessorNone}))
	d.Register("noise-cancellation", noiseCancellation)
	return d
}

func (d *DebugCommands) Register(name string, h DebugHandler) {
	d.handlers[name] = h
}

func (d *DebugCommands) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *DebugCommands) Run(ctx context.Context, name string, args []string) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	client, err := d.clients.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("command", name).Strs("args", args).Str("client_id", client.ID().String()).Msg("Running debug command")
	return h(ctx, client, args)
}

func logTracks(local bool) DebugHandler {
	return func(ctx context.Context, client port.CallClient, args []string) (any, error) {
		participants, err := client.Participants(ctx)
		if err != nil {
			return nil, err
		}
		var out []domain.Participant
		for _, p := range participants {
			if p.Local != local {
				continue
			}
			log.Info().
				Str("participant", p.ID).
				Bool("local", p.Local).
				Str("audio", p.Audio.State).
				Str("video", p.Video.State).
				Msg("Track states")
			out = append(out, p)
		}
		return out, nil
	}
}

func oneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: want exactly one argument, got %d", ErrBadArgs, len(args))
	}
	return args[0], nil
}

func setInputAudio(ctx context.Context, client port.CallClient, args []string) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	src, err := domain.ParseInputSource(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	in := domain.InputDevices{AudioSource: src}
	if src == domain.InputDefault {
		in = domain.InputDevices{AudioDeviceID: "default"}
	}
	return in, client.SetInputDevices(ctx, in)
}

func setInputVideo(ctx context.Context, client port.CallClient, args []string) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	src, err := domain.ParseInputSource(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	in := domain.InputDevices{VideoSource: src}
	if src == domain.InputDefault {
		devices, err := client.EnumerateDevices(ctx)
		if err != nil {
			return nil, err
		}
		id := ""
		for _, dev := range devices {
			if dev.Kind == domain.DeviceVideoInput {
				id = dev.ID
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, domain.DeviceVideoInput)
		}
		in = domain.InputDevices{VideoDeviceID: id}
	}
	return in, client.SetInputDevices(ctx, in)
}

func localAudio(enabled bool) DebugHandler {
	return func(ctx context.Context, client port.CallClient, args []string) (any, error) {
		return enabled, client.SetLocalAudio(ctx, enabled)
	}
}

func localVideo(enabled bool) DebugHandler {
	return func(ctx context.Context, client port.CallClient, args []string) (any, error) {
		return enabled, client.SetLocalVideo(ctx, enabled)
	}
}

func setTopology(ctx context.Context, client port.CallClient, args []string) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	t, err := domain.ParseTopology(arg)
	if err != nil || t == domain.TopologyDefault {
		return nil, fmt.Errorf("%w: topology %q", ErrBadArgs, arg)
	}
	return t, client.SetNetworkTopology(ctx, t)
}

func updateInputs(s domain.InputSettings) DebugHandler {
	return func(ctx context.Context, client port.CallClient, args []string) (any, error) {
		return s, client.UpdateInputSettings(ctx, s)
	}
}

// blurBackground takes an optional strength in (0, 1].
func blurBackground(ctx context.Context, client port.CallClient, args []string) (any, error) {
	s := domain.InputSettings{Video: domain.VideoProcessorBlur, BlurStrength: 1}
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: want at most one argument, got %d", ErrBadArgs, len(args))
	}
	if len(args) == 1 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v <= 0 || v > 1 {
			return nil, fmt.Errorf("%w: blur strength %q", ErrBadArgs, args[0])
		}
		s.BlurStrength = v
	}
	return updateInputs(s)(ctx, client, nil)
}

func imageBackground(ctx context.Context, client port.CallClient, args []string) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(arg)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: image url %q", ErrBadArgs, arg)
	}
	return updateInputs(domain.InputSettings{Video: domain.VideoProcessorImage, BackgroundImage: arg})(ctx, client, nil)
}

func noiseCancellation(ctx context.Context, client port.CallClient, args []string) (any, error) {
	arg, err := oneArg(args)
	if err != nil {
		return nil, err
	}
	var p domain.AudioProcessor
	switch arg {
	case "on":
		p = domain.AudioProcessorNoiseCancellation
	case "off":
		p = domain.AudioProcessorNone
	default:
		return nil, fmt.Errorf("%w: want on or off, got %q", ErrBadArgs, arg)
	}
	return updateInputs(domain.InputSettings{Audio: p})(ctx, client, nil)
}
