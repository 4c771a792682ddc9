package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/dwhall/lnk-heymac"
	"github.com/dwhall/lnk-heymac/phy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	serialPath  = kingpin.Flag("device", "Path to serial port device").Required().String()
	baudRate    = kingpin.Flag("baud", "Serial port baudrate").Default("115200").Uint()
	linkAddr    = kingpin.Flag("addr", "This node's 8-byte link address, hex-encoded").Required().String()
	netID       = kingpin.Flag("net-id", "Network ID to beacon and associate under").Default("1").Uint16()
	caps        = kingpin.Flag("caps", "Capability bits to advertise in beacons (bit0=surplus power, bit1=continuous rx, bit2=crypto)").Default("0").Uint16()
	priority    = kingpin.Flag("priority", "Scheduling priority, numerically lower runs first").Default("10").Int()
	verbose     = kingpin.Flag("verbose", "Enable debug logging").Bool()
	metricsAddr = kingpin.Flag("metrics-addr", "Address to serve Prometheus metrics on").Default(":9090").String()
)

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	addrBytes, err := parseHexAddr(*linkAddr)
	if err != nil {
		fmt.Printf("Error parsing link address: %v\n", err)
		os.Exit(1)
	}
	self, err := heymac.NewLinkAddress(addrBytes)
	if err != nil {
		fmt.Printf("Error building link address: %v\n", err)
		os.Exit(1)
	}

	log := heymac.StdLogger{Verbose: *verbose}

	fmt.Printf("Opening serial PHY on %s...\n", *serialPath)
	p, err := phy.NewSerialPhy(*serialPath, *baudRate)
	if err != nil {
		fmt.Printf("Error opening serial PHY: %v\n", err)
		os.Exit(1)
	}

	var lnk *heymac.Lnk
	metrics := heymac.NewMetrics(prometheus.DefaultRegisterer, func() float64 {
		if lnk == nil {
			return 0
		}
		return float64(lnk.DialogsActive())
	})
	lnk, err = heymac.NewLnk(self, heymac.NetIdentifier(*netID), *priority, p, log, metrics)
	if err != nil {
		fmt.Printf("Error building LNK machine: %v\n", err)
		os.Exit(1)
	}
	lnk.Caps = *caps

	fmt.Println("Starting LNK state machine...")
	if err := lnk.Start(); err != nil {
		fmt.Printf("Error starting LNK machine: %v\n", err)
		os.Exit(1)
	}

	http.Handle("/metrics", promhttp.Handler())
	fmt.Printf("Serving metrics on %s/metrics\n", *metricsAddr)
	if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
		fmt.Printf("Error serving metrics: %v\n", err)
		os.Exit(1)
	}
}

func parseHexAddr(s string) ([]byte, error) {
	if len(s) != heymac.LnkAddrSize*2 {
		return nil, fmt.Errorf("address must be %d hex characters", heymac.LnkAddrSize*2)
	}
	out := make([]byte, heymac.LnkAddrSize)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
