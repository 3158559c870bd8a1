package playback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/infra/spotify"
)

// Errors
var (
	ErrPlaybackUnavailable = errors.New("no active playback device")
	ErrNothingToPlay       = errors.New("no tracks to play")
)

// Player is the subset of the Web API used for playback.
type Player interface {
	Devices(ctx context.Context) ([]spotify.Device, error)
	Play(ctx context.Context, trackURIs []string) error
	Queue(ctx context.Context, trackURI string) error
}

// Controller plays and queues tracks. Requests made while no device is
// active are dropped without an error.
type Controller struct {
	mu sync.Mutex

	player Player
	state  State
	device string
	queued int
}

// NewController creates a new playback controller.
func NewController(player Player) *Controller {
	return &Controller{
		player: player,
		state:  StateIdle,
	}
}

// Devices lists the user's playback devices.
func (c *Controller) Devices(ctx context.Context) ([]spotify.Device, error) {
	devices, err := c.player.Devices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playback devices")
	}
	return devices, nil
}

// ActiveDevice returns the active device, or ErrPlaybackUnavailable.
func (c *Controller) ActiveDevice(ctx context.Context) (spotify.Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return spotify.Device{}, err
	}
	for _, d := range devices {
		if d.Active {
			return d, nil
		}
	}
	return spotify.Device{}, errors.Wrapf(ErrPlaybackUnavailable, "%d devices, none active", len(devices))
}

// Play replaces the current playback with uris. It reports false when
// there was no active device.
func (c *Controller) Play(ctx context.Context, uris []string) (bool, error) {
	if len(uris) == 0 {
		return false, ErrNothingToPlay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	device, ok, err := c.activeDeviceLocked(ctx)
	if err != nil || !ok {
		return false, err
	}

	if err := c.player.Play(ctx, uris); err != nil {
		return false, err
	}

	c.state = StatePlaying
	c.device = device.Name
	c.queued = 0
	zlog.Info().Msgf("playback started: device=%s tracks=%d", device.Name, len(uris))
	return true, nil
}

// Queue appends uri to the active device's queue. It reports false when
// there was no active device.
func (c *Controller) Queue(ctx context.Context, uri string) (bool, error) {
	if uri == "" {
		return false, ErrNothingToPlay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	device, ok, err := c.activeDeviceLocked(ctx)
	if err != nil || !ok {
		return false, err
	}

	if err := c.player.Queue(ctx, uri); err != nil {
		return false, err
	}

	c.device = device.Name
	c.queued++
	zlog.Debug().Msgf("queued track: device=%s uri=%s", device.Name, uri)
	return true, nil
}

// Status returns the last state, device name and tracks queued since the last Play.
func (c *Controller) Status() (State, string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.device, c.queued
}

func (c *Controller) activeDeviceLocked(ctx context.Context) (spotify.Device, bool, error) {
	device, err := c.ActiveDevice(ctx)
	if errors.Is(err, ErrPlaybackUnavailable) {
		c.state = StateSkipped
		zlog.Debug().Msgf("playback skipped: %v", err)
		return spotify.Device{}, false, nil
	}
	if err != nil {
		return spotify.Device{}, false, err
	}
	return device, true, nil
}
