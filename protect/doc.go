// Package protect talks to the chime API of a UniFi Protect NVR.
//
// A Client owns one authenticated session (CSRF token and cookie) and logs in
// again whenever the NVR rejects a request. A ChimeService builds the three
// chime operations on top of it and retries failed calls a bounded number of times.
//
// Certificate verification is on by default. Most NVRs ship a self-signed
// certificate, so set Config.InsecureSkipVerify when you trust the local network.
package protect
