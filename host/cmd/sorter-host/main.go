package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"sorterfw/host/bus"
	"sorterfw/host/serial"
)

var (
	device   = flag.String("device", "", "Serial device path (default: first interface board found)")
	address  = flag.Uint("address", 0, "Board address")
	list     = flag.Bool("list", false, "List serial ports and exit")
	discover = flag.Bool("discover", false, "Scan interface board ports for boards and exit")
	maxAddr  = flag.Uint("max-address", bus.DefaultMaxAddress, "Highest address checked by -discover and scan")
)

func main() {
	flag.Parse()

	if *list {
		if err := listPorts(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if *discover {
		if err := discoverBoards(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path := *device
	if path == "" {
		boards, err := serial.InterfaceBoards()
		if err != nil || len(boards) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no interface board found, use -device")
			os.Exit(1)
		}
		path = boards[0]
	}

	fmt.Printf("Connecting to %s...\n", path)
	b, err := bus.Open(serial.DefaultConfig(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	dev := b.Device(uint8(*address))
	id, err := dev.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: INIT failed: %v\n", err)
		os.Exit(1)
	}
	printIdentity(id)

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
		case "scan":
			found, err := b.Scan(bus.DefaultMinAddress, uint8(*maxAddr))
			fmt.Printf("Boards: %v\n", found)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		case "device":
			addr, err := parseUint(parts, 1, 8)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			dev = b.Device(uint8(addr))
		default:
			if err := runCommand(dev, parts, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func listPorts() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		mark := " "
		if p.IsInterfaceBoard() {
			mark = "*"
		}
		if p.USB {
			fmt.Printf("%s %-20s %s:%s %s\n", mark, p.Name, p.VID, p.PID, p.SerialNumber)
		} else {
			fmt.Printf("%s %s\n", mark, p.Name)
		}
	}
	return nil
}

func discoverBoards() error {
	ports, err := serial.InterfaceBoards()
	if err != nil {
		return err
	}
	if *device != "" {
		ports = []string{*device}
	}
	found, err := bus.Discover(ports, bus.OpenSerial, bus.DefaultMinAddress, uint8(*maxAddr))
	for _, f := range found {
		fmt.Printf("%s: %v\n", f.Port, f.Addresses)
	}
	return err
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  init                          - Reinitialize the board and print its identity")
	fmt.Println("  ping [text]                   - Echo test")
	fmt.Println("  log                           - Print the board debug log")
	fmt.Println("  scan                          - Ping every address on this port")
	fmt.Println("  device <addr>                 - Talk to another board on this port")
	fmt.Println("  stepper <ch> move <steps>     - Relative move")
	fmt.Println("  stepper <ch> speed <sps>      - Run at signed speed, 0 stops")
	fmt.Println("  stepper <ch> limits <min> <max>")
	fmt.Println("  stepper <ch> accel <sps2>")
	fmt.Println("  stepper <ch> status           - Position and stopped flag")
	fmt.Println("  stepper <ch> setpos <pos>")
	fmt.Println("  stepper <ch> home <sps> <pin> <level>")
	fmt.Println("  stepper <ch> enable <0|1>     - Driver enable line")
	fmt.Println("  servo <ch> enable <0|1>")
	fmt.Println("  servo <ch> move <0-1800>")
	fmt.Println("  servo <ch> limits <min> <max>")
	fmt.Println("  servo <ch> accel <a>")
	fmt.Println("  servo <ch> duty <min> <max>")
	fmt.Println("  servo <ch> status")
	fmt.Println("  servo <ch> stop")
	fmt.Println("  read <ch>                     - Digital input")
	fmt.Println("  write <ch> <0|1>              - Digital output")
	fmt.Println("  quit/exit/q                   - Exit the program")
	fmt.Println()
}
