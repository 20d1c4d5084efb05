package hkchime

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// VolumeCache keeps chime volumes for a short time. HomeKit reads On and
// Brightness together; both reads are answered by one NVR request.
type VolumeCache struct {
	volumes *cache.Cache
}

// NewVolumeCache returns a cache keeping entries for ttl. A ttl of zero or
// less disables caching.
func NewVolumeCache(ttl time.Duration) *VolumeCache {
	if ttl <= 0 {
		return &VolumeCache{}
	}
	return &VolumeCache{volumes: cache.New(ttl, 2*ttl)}
}

func (v *VolumeCache) Get(chimeID string) (int, bool) {
	if v == nil || v.volumes == nil {
		return 0, false
	}
	x, found := v.volumes.Get(chimeID)
	if !found {
		return 0, false
	}
	return x.(int), true
}

func (v *VolumeCache) Set(chimeID string, volume int) {
	if v == nil || v.volumes == nil {
		return
	}
	v.volumes.Set(chimeID, volume, cache.DefaultExpiration)
}

func (v *VolumeCache) Delete(chimeID string) {
	if v == nil || v.volumes == nil {
		return
	}
	v.volumes.Delete(chimeID)
}
