// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"math/rand"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomResponse builds a random response with a known encoding
func randomResponse(rng *rand.Rand) Response {
	switch rng.Intn(5) {
	case 0:
		s := Settings{
			Version:               Version(rng.Intn(3) + 1),
			Channel:               uint8(rng.Intn(256)),
			PowerLevel:            uint8(rng.Intn(256)),
			Frequency:             uint16(rng.Intn(65536)),
			Unlocked:              rng.Intn(2) == 1,
			UserFrequencyMode:     rng.Intn(2) == 1,
			PitmodeEnabled:        rng.Intn(2) == 1,
			PitmodeInRangeActive:  rng.Intn(2) == 1,
			PitmodeOutRangeActive: rng.Intn(2) == 1,
		}
		if s.Version == Version21 {
			s.PowerSettings = &PowerSettings{
				CurrentPower:   uint8(rng.Intn(256)),
				NumPowerLevels: uint8(rng.Intn(256)),
			}
			for i := range s.PowerSettings.DBmLevels {
				s.PowerSettings.DBmLevels[i] = uint8(rng.Intn(256))
			}
		}
		return s
	case 1:
		return SetPowerResponse{Power: uint8(rng.Intn(256))}
	case 2:
		return SetChannelResponse{Channel: uint8(rng.Intn(256))}
	case 3:
		return SetFrequencyResponse{Frequency: uint16(rng.Intn(65536))}
	default:
		return SetModeResponse{
			PitmodeInRangeActive:  rng.Intn(2) == 1,
			PitmodeOutRangeActive: rng.Intn(2) == 1,
			PitmodeEnabled:        rng.Intn(2) == 1,
			Unlocked:              rng.Intn(2) == 1,
		}
	}
}

// ============================================================
// Parser Fuzz Tests
// ============================================================

// TestFuzzParser_RandomBytes feeds random bytes to the parser
// and verifies it doesn't panic and never reports a frame with a bad CRC
func TestFuzzParser_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := NewParser()

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			frame, ok, _ := p.PushByteRaw(b)
			if !ok {
				continue
			}
			raw := frame.Bytes()
			if CalculateCRC(raw[2:len(raw)-1]) != frame.CRC() {
				t.Fatalf("round %d: parser returned frame with bad CRC: %s", i, FormatHex(raw))
			}
		}
	}
}

// TestFuzzParser_RandomResponses encodes random responses and verifies
// they decode to the same value, with random noise between frames
func TestFuzzParser_RandomResponses(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	p := NewParser()
	for i := 0; i < rounds; i++ {
		want := randomResponse(rng)
		data, err := EncodeResponse(want)
		if err != nil {
			t.Fatalf("round %d: encode failed: %v", i, err)
		}

		// Noise that can never start a frame
		for n := rng.Intn(4); n > 0; n-- {
			noise := uint8(rng.Intn(256))
			if noise == HeaderByte1 {
				noise = 0
			}
			if _, err := p.PushByte(noise); err != nil {
				t.Fatalf("round %d: noise produced error: %v", i, err)
			}
		}

		var got Response
		for _, b := range data {
			resp, err := p.PushByte(b)
			if err != nil {
				t.Fatalf("round %d: decode of %s failed: %v", i, FormatHex(data), err)
			}
			if resp != nil {
				got = resp
			}
		}

		if got == nil {
			t.Fatalf("round %d: no response from %s", i, FormatHex(data))
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round %d: mismatch\n got: %#v\nwant: %#v", i, got, want)
		}
	}
}

// TestFuzzParser_CorruptedFrames flips random bits in valid frames and verifies
// the parser recovers for the next frame
func TestFuzzParser_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	valid := []byte{0xAA, 0x55, 0x03, 0x03, 0x00, 0x01, 0x4A}

	for i := 0; i < rounds; i++ {
		p := NewParser()

		data, _ := EncodeResponse(randomResponse(rng))
		// Leave the first header byte so the frame is always entered
		pos := rng.Intn(len(data)-1) + 1
		data[pos] ^= 1 << uint(rng.Intn(8))

		for _, b := range data {
			p.PushByte(b)
		}

		// A corrupted length byte can leave the parser mid-frame
		p.Reset()

		var got Response
		for _, b := range valid {
			resp, err := p.PushByte(b)
			if err != nil {
				t.Fatalf("round %d: unexpected error after reset: %v", i, err)
			}
			if resp != nil {
				got = resp
			}
		}
		if got != (SetChannelResponse{Channel: 0}) {
			t.Fatalf("round %d: parser did not recover, got %#v", i, got)
		}
	}
}

// TestFuzzCommandParser_RandomCommands encodes random commands and decodes them
func TestFuzzCommandParser_RandomCommands(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	p := NewCommandParser()
	for i := 0; i < rounds; i++ {
		var want Command
		switch rng.Intn(5) {
		case 0:
			want = GetSettingsCommand{}
		case 1:
			want = SetPowerCommand{Power: ParsePower(uint8(rng.Intn(256)))}
		case 2:
			want = SetChannelCommand{Channel: uint8(rng.Intn(256))}
		case 3:
			want = SetFrequencyCommand{Frequency: uint16(rng.Intn(65536))}
		default:
			want = SetModeCommand{
				PitmodeInRangeActive: rng.Intn(2) == 1,
				PitmodeEnabled:       rng.Intn(2) == 1,
				Unlocked:             rng.Intn(2) == 1,
			}
		}

		data, err := EncodeCommand(want)
		if err != nil {
			t.Fatalf("round %d: encode failed: %v", i, err)
		}

		var got Command
		for _, b := range data {
			cmd, err := p.PushByte(b)
			if err != nil {
				t.Fatalf("round %d: decode of %s failed: %v", i, FormatHex(data), err)
			}
			if cmd != nil {
				got = cmd
			}
		}
		if got != want {
			t.Fatalf("round %d: got %#v, want %#v", i, got, want)
		}
	}
}

// FuzzParser is the native fuzz target for the response parser
func FuzzParser(f *testing.F) {
	f.Add(frameSettingsV21)
	f.Add(frameSetFrequency)
	f.Add([]byte{0xAA, 0x55, 0xFF, 0x1B})

	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewParser()
		for resp, err := range p.Responses(data) {
			if err == nil && resp == nil {
				t.Fatal("sequence yielded neither response nor error")
			}
		}
	})
}
