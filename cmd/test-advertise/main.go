// Command test-advertise is a manual test for the BLE backends.
// It advertises the soil service for a while and prints connection
// changes and writes. Scan for the device name with a phone app such as
// nRF Connect before the timer runs out.
//
// Usage:
//
//	go run ./cmd/test-advertise [--backend tinygo|goble] [--duration 60s]
package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/chaz8081/soil-peripheral/internal/ble"
)

func main() {
	backend := flag.String("backend", ble.BackendTinyGo, "ble backend: tinygo or goble")
	name := flag.String("name", ble.DefaultDeviceName, "advertised local name")
	duration := flag.Duration("duration", 60*time.Second, "how long to advertise")
	flag.Parse()

	adapter, err := ble.NewAdapter(*backend, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	adapter.SetConnectHandler(func(connected bool) {
		if connected {
			fmt.Println("Client connected")
			return
		}
		fmt.Println("Client disconnected")
	})

	char, err := adapter.AddService(ble.ServiceConfig{
		ServiceUUID:        ble.DefaultServiceUUID,
		CharacteristicUUID: ble.DefaultCharacteristicUUID,
		Writable:           true,
		InitialValue:       []byte("0"),
		OnWrite: func(data []byte) {
			fmt.Printf("Write: %q\n", data)
		},
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := adapter.StartAdvertising(*name, ble.DefaultServiceUUID); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Advertising %q via %s for %s...\n", *name, *backend, *duration)

	// Push a fixed marker once a second so a subscribed client sees traffic.
	deadline := time.After(*duration)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for n := 0; ; n++ {
		select {
		case <-ticker.C:
			if err := char.SetValue([]byte(strconv.Itoa(n % 100))); err != nil {
				fmt.Printf("SetValue: %v\n", err)
				continue
			}
			// No subscriber yet is the normal state until a client enables
			// notifications.
			if err := char.Notify(); err != nil && !errors.Is(err, ble.ErrNoSubscriber) {
				fmt.Printf("Notify: %v\n", err)
			}
		case <-deadline:
			if err := adapter.StopAdvertising(); err != nil {
				fmt.Printf("StopAdvertising: %v\n", err)
			}
			fmt.Println("\nDone!")
			return
		}
	}
}
