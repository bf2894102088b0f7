//go:build !rp2040 && !rp2350

// encoder-monitor reads the text log that pico-encoder writes to its UART
// and prints a running summary per encoder.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"go.bug.st/serial"
)

func main() {
	portName := flag.String("port", "", "serial port (default: first port found)")
	baud := flag.Int("baud", 115200, "baud rate")
	raw := flag.Bool("raw", false, "also echo every received line")
	flag.Parse()

	if *portName == "" {
		ports, err := serial.GetPortsList()
		if err != nil || len(ports) == 0 {
			fmt.Fprintln(os.Stderr, "no serial ports found; use -port")
			os.Exit(1)
		}
		*portName = ports[0]
	}

	port, err := serial.Open(*portName, &serial.Mode{BaudRate: *baud})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *portName, err)
		os.Exit(1)
	}
	defer port.Close()
	fmt.Printf("listening on %s at %d baud\n", *portName, *baud)

	tr := newTracker()
	in := bufio.NewScanner(port)
	for in.Scan() {
		if *raw {
			fmt.Println(in.Text())
		}
		rec, ok := parseLine(in.Text())
		if !ok {
			continue
		}
		if out := tr.handle(rec); out != "" {
			fmt.Println(out)
		}
	}
	if err := in.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
}
