// Package hkchime exposes UniFi Protect chimes to HomeKit.
//
// Every chime becomes a Lightbulb accessory: Brightness is the chime volume
// and the light is on while the volume is above zero. Switching a chime on
// restores the last volume it played at.
package hkchime
