package main

import (
	"fmt"
	"os"

	"github.com/dwhall/lnk-heymac/phy"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	serialPath = kingpin.Flag("device", "Path to serial port device").Required().String()
	baudRate   = kingpin.Flag("baud", "Serial port baudrate").Default("115200").Uint()
)

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	p, err := phy.NewSerialPhy(*serialPath, *baudRate)
	if err != nil {
		fmt.Printf("Error opening serial PHY: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Switching RF off...")
	if err := p.SetRFOn(false); err != nil {
		fmt.Printf("Error switching RF off: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("done")

	if err := p.Close(); err != nil {
		fmt.Printf("Error closing serial PHY: %v\n", err)
		os.Exit(1)
	}
}
