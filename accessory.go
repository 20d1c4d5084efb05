package hkchime

import (
	"encoding/binary"

	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/google/uuid"

	"github.com/ra1nb0w/hkchime/protect"
)

// Chime exposes a doorbell chime as a dimmable light: the brightness is the
// chime volume and the light is off when the volume is zero.
type Chime struct {
	*accessory.Accessory
	Light *ChimeLight
}

// NewChime returns a Chime accessory.
func NewChime(info accessory.Info) *Chime {
	acc := Chime{}
	acc.Accessory = accessory.New(info, accessory.TypeLightbulb)

	acc.Light = NewChimeLight()
	acc.AddService(acc.Light.Service)

	return &acc
}

// ChimeLight is a Lightbulb service with On and Brightness.
type ChimeLight struct {
	*service.Service

	On         *characteristic.On
	Brightness *characteristic.Brightness
}

func NewChimeLight() *ChimeLight {
	svc := ChimeLight{}
	svc.Service = service.New(service.TypeLightbulb)

	svc.On = characteristic.NewOn()
	svc.AddCharacteristic(svc.On.Characteristic)

	svc.Brightness = characteristic.NewBrightness()
	svc.AddCharacteristic(svc.Brightness.Characteristic)

	return &svc
}

// chimeNamespace seeds the accessory ids so a chime keeps its id across restarts.
var chimeNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("hkchime"))

// ChimeInfo describes a chime to HomeKit.
func ChimeInfo(c protect.Chime) accessory.Info {
	model := c.Type
	if model == "" {
		model = "Chime"
	}

	return accessory.Info{
		Name:             c.Name,
		SerialNumber:     c.ID,
		Manufacturer:     "Ubiquiti",
		Model:            model,
		FirmwareRevision: c.FirmwareVersion,
		ID:               AccessoryID(c.ID),
	}
}

// AccessoryID derives a stable HomeKit accessory id from a chime id.
// Ids 0 and 1 are reserved (unset and bridge) and ids stay below 2^53 since
// controllers decode them as JSON numbers.
func AccessoryID(chimeID string) uint64 {
	u := uuid.NewSHA1(chimeNamespace, []byte("chime_"+chimeID))
	id := binary.BigEndian.Uint64(u[:8]) & (1<<53 - 1)
	if id < 2 {
		id += 2
	}
	return id
}
