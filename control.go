package hkchime

import (
	"context"
	"sync"
	"time"

	"github.com/brutella/hc/log"

	"github.com/ra1nb0w/hkchime/protect"
)

// VolumeController reads and writes chime volumes.
// *protect.ChimeService implements it.
type VolumeController interface {
	GetVolume(ctx context.Context, id string) (int, error)
	SetVolume(ctx context.Context, id string, value int) error
}

// Recorder keeps a history of volume changes.
type Recorder interface {
	InsertVolumeChange(chimeID, name string, volume int) error
}

// volume used when a chime is switched on and no earlier volume is known
const defaultVolume = 100

// ChimeControl connects the characteristics of a Chime accessory to the NVR.
type ChimeControl struct {
	acc      *Chime
	device   protect.Chime
	volumes  VolumeController
	cache    *VolumeCache
	recorder Recorder
	timeout  time.Duration

	mutex     sync.Mutex
	lastKnown int
}

// NewChimeControl returns a control showing the volume the chime was listed with.
// cache and recorder may be nil.
func NewChimeControl(acc *Chime, device protect.Chime, volumes VolumeController, cache *VolumeCache, recorder Recorder, timeout time.Duration) *ChimeControl {
	c := &ChimeControl{
		acc:       acc,
		device:    device,
		volumes:   volumes,
		cache:     cache,
		recorder:  recorder,
		timeout:   timeout,
		lastKnown: int(device.Volume),
	}
	c.show(int(device.Volume))
	return c
}

// Bind installs the HomeKit handlers.
func (c *ChimeControl) Bind() {
	c.acc.Light.On.OnValueRemoteGet(c.on)
	c.acc.Light.On.OnValueRemoteUpdate(c.setOn)
	c.acc.Light.Brightness.OnValueRemoteGet(c.brightness)
	c.acc.Light.Brightness.OnValueRemoteUpdate(c.setBrightness)
}

// LastKnownVolume returns the last non-zero volume seen for the chime.
func (c *ChimeControl) LastKnownVolume() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.lastKnown
}

func (c *ChimeControl) context() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *ChimeControl) volume() (int, error) {
	if v, found := c.cache.Get(c.device.ID); found {
		return v, nil
	}

	ctx, cancel := c.context()
	defer cancel()

	v, err := c.volumes.GetVolume(ctx, c.device.ID)
	if err != nil {
		log.Info.Printf("%s: reading volume: %v", c.device.Name, err)
		return 0, err
	}

	c.cache.Set(c.device.ID, v)
	c.remember(v)
	c.show(v)
	return v, nil
}

func (c *ChimeControl) on() bool {
	v, err := c.volume()
	if err != nil {
		return c.acc.Light.On.GetValue()
	}
	return v > 0
}

func (c *ChimeControl) brightness() int {
	v, err := c.volume()
	if err != nil {
		return c.acc.Light.Brightness.GetValue()
	}
	return v
}

func (c *ChimeControl) setOn(on bool) {
	target := 0
	if on {
		target = c.LastKnownVolume()
		if target <= 0 {
			target = defaultVolume
		}
	}
	c.set(target)
}

func (c *ChimeControl) setBrightness(value int) {
	c.set(value)
}

func (c *ChimeControl) set(volume int) {
	ctx, cancel := c.context()
	defer cancel()

	log.Debug.Printf("%s: set volume %d", c.device.Name, volume)

	if err := c.volumes.SetVolume(ctx, c.device.ID, volume); err != nil {
		log.Info.Printf("%s: setting volume %d: %v", c.device.Name, volume, err)
		c.cache.Delete(c.device.ID)
		return
	}

	c.cache.Set(c.device.ID, volume)
	c.remember(volume)
	c.show(volume)

	if c.recorder != nil {
		if err := c.recorder.InsertVolumeChange(c.device.ID, c.device.Name, volume); err != nil {
			log.Info.Printf("%s: recording volume change: %v", c.device.Name, err)
		}
	}
}

func (c *ChimeControl) remember(volume int) {
	if volume <= 0 {
		return
	}
	c.mutex.Lock()
	c.lastKnown = volume
	c.mutex.Unlock()
}

// show pushes a volume to both characteristics.
func (c *ChimeControl) show(volume int) {
	c.acc.Light.On.SetValue(volume > 0)
	c.acc.Light.Brightness.SetValue(volume)
}
