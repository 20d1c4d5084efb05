package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/log"

	"github.com/ra1nb0w/hkchime"
	"github.com/ra1nb0w/hkchime/backend"
	"github.com/ra1nb0w/hkchime/protect"

	"net/http"
	_ "net/http/pprof"
)

// envOr returns the environment variable name, or def when it is unset.
func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func main() {

	// Command line arguments
	var nvrAddress *string = flag.String("nvr_address", envOr("HKCHIME_NVR_ADDRESS", ""), "base URL of the NVR, e.g. https://192.168.1.1")
	var username *string = flag.String("username", envOr("HKCHIME_USERNAME", ""), "NVR username (or HKCHIME_USERNAME)")
	var password *string = flag.String("password", envOr("HKCHIME_PASSWORD", ""), "NVR password (or HKCHIME_PASSWORD)")
	var insecure *bool = flag.Bool("insecure_skip_verify", false, "Skip TLS certificate verification of the NVR")
	var timeout *time.Duration = flag.Duration("request_timeout", protect.DefaultTimeout, "timeout of a single NVR request")
	var backoffThreshold *int = flag.Int("backoff_threshold", protect.DefaultBackoffThreshold, "logins allowed before waiting backoff_delay")
	var backoffDelay *time.Duration = flag.Duration("backoff_delay", protect.DefaultBackoffDelay, "wait before each login past the threshold")
	var maxAttempts *int = flag.Int("max_attempts", protect.DefaultMaxAttempts, "attempts per chime operation, 0 retries forever")
	var cacheTTL *time.Duration = flag.Duration("cache_ttl", 2*time.Second, "how long a read volume is reused, 0 disables")
	var verbose *bool = flag.Bool("verbose", false, "Verbose logging")
	var dataDir *string = flag.String("data_dir", "Chimes", "Path to data directory")
	var pin *string = flag.String("pin", "00102003", "Pin used to associate the bridge to Homekit")
	var profile *bool = flag.Bool("profile", false, "Enable http pprof")
	var profile_addr *string = flag.String("profile_addr", "localhost:8383", "pprof address:port")
	var backend_addr *string = flag.String("backend_addr", "0.0.0.0:8080", "address:port of the backend web service")

	flag.Parse()

	if *verbose {
		log.Debug.Enable()
	}

	cfg := protect.Config{
		Address:            *nvrAddress,
		Username:           *username,
		Password:           *password,
		InsecureSkipVerify: *insecure,
		Timeout:            *timeout,
		BackoffThreshold:   *backoffThreshold,
		BackoffDelay:       *backoffDelay,
		MaxAttempts:        *maxAttempts,
	}
	if err := cfg.Validate(); err != nil {
		log.Info.Fatalln(err)
	}
	if cfg.InsecureSkipVerify {
		log.Info.Println("TLS certificate verification of the NVR is disabled")
	}

	chimes := protect.NewChimeService(protect.NewClient(cfg))

	// discover the chimes once at startup
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	devices, err := chimes.ListDevices(ctx)
	cancel()
	if err != nil {
		log.Info.Fatalln("listing chimes:", err)
	}
	log.Info.Printf("found %d chimes", len(devices))

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Info.Fatalln(err)
	}

	// start backend http web server
	bk := backend.InitBackend(filepath.Join(*dataDir, "history.sqlite"), *backend_addr)
	if err := bk.Open(); err != nil {
		log.Info.Fatalln(err)
	}
	go func() {
		if err := bk.StartWebService(); err != nil {
			log.Info.Println("backend:", err)
		}
	}()

	bridge := accessory.NewBridge(accessory.Info{
		Name:             "Chimes",
		FirmwareRevision: "1.0",
		SerialNumber:     "hkchime",
		Manufacturer:     "hkchime",
		Model:            "Chime Bridge",
		ID:               1,
	})

	// HomeKit handlers give up once every attempt had its chance
	var opTimeout time.Duration
	if *maxAttempts > 0 {
		opTimeout = time.Duration(*maxAttempts) * (*timeout + *backoffDelay)
	}

	cache := hkchime.NewVolumeCache(*cacheTTL)
	accs := make([]*accessory.Accessory, 0, len(devices))
	for _, d := range devices {
		log.Info.Printf("Adding chime %s (%s) volume %d", d.Name, d.ID, d.Volume)
		acc := hkchime.NewChime(hkchime.ChimeInfo(d))
		hkchime.NewChimeControl(acc, d, chimes, cache, bk, opTimeout).Bind()
		accs = append(accs, acc.Accessory)
	}

	// configure homekit
	config := hc.Config{Pin: *pin, StoragePath: filepath.Join(*dataDir, "homekit")}

	t, err := hc.NewIPTransport(config, bridge.Accessory, accs...)
	if err != nil {
		log.Info.Panic(err)
	}

	// enable pprof
	if *profile {
		log.Debug.Println("Start pprof at " + *profile_addr)
		go http.ListenAndServe(*profile_addr, nil)
	}

	// close all connection when exit
	hc.OnTermination(func() {
		bk.StopWebService()
		<-t.Stop()
	})

	// start the homekit bridge
	t.Start()
}
