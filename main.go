// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// smartaudio - SmartAudio VTX control and line analyzer
//
// A CLI tool for reading and changing SmartAudio video transmitter settings
// and for decoding SmartAudio traffic in human-readable format.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/smartaudio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
